package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Endereco endereço fiscal completo (layout SEFAZ).
type Endereco struct {
	Logradouro      string
	Numero          string
	Complemento     string
	Bairro          string
	CodigoMunicipio string // código IBGE, 7 dígitos (3550308 = São Paulo)
	Municipio       string
	UF              string
	CEP             string
}

// Emitente dados cadastrais do emissor dos documentos fiscais.
// Uma única linha ativa por instalação, no padrão da tabela de configuração.
type Emitente struct {
	ID                 string
	CNPJ               string
	RazaoSocial        string
	NomeFantasia       string
	InscricaoEstadual  string
	InscricaoMunicipal string
	CRT                int // 1 = Simples Nacional
	RegimeTributacao   int
	OptanteSimples     bool
	CodigoServico      string          // código do serviço municipal (NFS-e)
	AliquotaISS        decimal.Decimal // fração (0.05 = 5%)
	Endereco           Endereco
	Ativo              bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
