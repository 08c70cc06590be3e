// Estruturas da NFS-e do município de São Paulo (lotenfe, schema versão 1).

package nfse

import (
	"time"

	"github.com/shopspring/decimal"
)

// NamespaceNFSe namespace dos pedidos enviados ao lotenfe.asmx.
const NamespaceNFSe = "http://www.prefeitura.sp.gov.br/nfe"

// Tipos de RPS aceitos pelo schema paulistano.
const (
	TipoRPS         = "RPS"
	TipoRPSMista    = "RPS-M"
	TipoRPSCupom    = "RPS-C"
	StatusRPSNormal = "N"
)

// Prestador dados do emissor do RPS.
type Prestador struct {
	CNPJ               string
	InscricaoMunicipal string
}

// Tomador destinatário do serviço. Campos de endereço e contato são
// opcionais no schema e só entram no XML quando preenchidos.
type Tomador struct {
	CPFCNPJ            string
	RazaoSocial        string
	InscricaoMunicipal string
	Email              string
	Endereco           string
	NumeroEndereco     string
	Complemento        string
	Bairro             string
	CodigoMunicipio    string
	UF                 string
	CEP                string
}

// Servico valores e enquadramento do serviço prestado.
type Servico struct {
	CodigoServico string
	Discriminacao string
	// AliquotaISS em fração (0.05 = 5%).
	AliquotaISS   decimal.Decimal
	ValorServicos decimal.Decimal
	ValorDeducoes decimal.Decimal
	ValorPIS      decimal.Decimal
	ValorCOFINS   decimal.Decimal
	ValorINSS     decimal.Decimal
	ValorIR       decimal.Decimal
	ValorCSLL     decimal.Decimal
	ISSRetido     bool
}

// DadosRPS identificação do recibo provisório.
type DadosRPS struct {
	Numero           int64
	Serie            string
	Tipo             string // RPS, RPS-M ou RPS-C
	Emissao          time.Time
	RegimeTributacao int
	OptanteSimples   bool
}

// DadosNFSe conjunto completo para montar e assinar um RPS.
type DadosNFSe struct {
	RPS       DadosRPS
	Prestador Prestador
	Tomador   Tomador
	Servico   Servico
}

// CodigoTributacao mapeia o regime do prestador para o código de uma letra
// do campo TributacaoRPS. Optante pelo Simples sempre tributa como T.
func CodigoTributacao(regime int, optanteSimples bool) string {
	if optanteSimples {
		return "T"
	}
	switch regime {
	case 1:
		return "M" // microempresa municipal
	case 2:
		return "E" // estimativa
	case 3:
		return "C" // sociedade de profissionais
	case 4:
		return "F" // cooperativa
	case 5:
		return "K" // MEI
	case 6:
		return "T" // ME/EPP do Simples
	default:
		return "T"
	}
}
