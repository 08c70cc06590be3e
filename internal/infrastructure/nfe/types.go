// Package nfe: construção, assinatura e transmissão de NF-e modelo 55,
// layout 4.00, contra os Web Services da SEFAZ SP.
// Ref: Manual de Orientação do Contribuinte (MOC) v7.0.

package nfe

import (
	"time"

	"github.com/shopspring/decimal"
)

// Namespace do layout da NF-e.
const NamespaceNFe = "http://www.portalfiscal.inf.br/nfe"

// Versões de schema.
const (
	VersaoLayout = "4.00"
	VersaoEvento = "1.00"
)

// Endereco endereço no layout enderEmit/enderDest.
type Endereco struct {
	Logradouro      string
	Numero          string
	Complemento     string
	Bairro          string
	CodigoMunicipio string
	Municipio       string
	UF              string
	CEP             string
}

// Emitente bloco emit.
type Emitente struct {
	CNPJ              string
	RazaoSocial       string
	NomeFantasia      string
	InscricaoEstadual string
	CRT               int // 1 = Simples Nacional
	Endereco          Endereco
}

// Destinatario bloco dest. Endereco é opcional (NF-e para consumidor final).
type Destinatario struct {
	CPFCNPJ     string
	RazaoSocial string
	IndicadorIE int // 1 = contribuinte, 2 = isento, 9 = não contribuinte
	Email       string
	Endereco    *Endereco
}

// Item uma linha det da nota.
type Item struct {
	Numero        int // nItem, 1-based
	Codigo        string
	EAN           string // vazio = "SEM GTIN"
	Descricao     string
	NCM           string
	CFOP          string
	Unidade       string
	Quantidade    decimal.Decimal
	ValorUnitario decimal.Decimal
	ValorTotal    decimal.Decimal
}

// DadosNFe entrada completa para montar uma NF-e.
type DadosNFe struct {
	CodigoUF              int
	Ambiente              int // 1 = produção, 2 = homologação
	Serie                 int
	Numero                int64
	NaturezaOperacao      string
	CodigoNumerico        string // cNF; vazio = derivado deterministicamente
	Emissao               time.Time
	Emitente              Emitente
	Destinatario          Destinatario
	Itens                 []Item
	InformacoesAdicionais string
}

// NFeGerada resultado da montagem do XML (ainda sem assinatura).
type NFeGerada struct {
	XML               string
	ChaveAcesso       string
	CodigoNumerico    string
	DigitoVerificador string
	ValorTotal        decimal.Decimal
}

// EventoCancelamento entrada do evento 110111.
type EventoCancelamento struct {
	ChaveAcesso   string
	CNPJ          string
	Ambiente      int
	Protocolo     string
	Justificativa string
	Sequencia     int // nSeqEvento; 0 = 1
	Quando        time.Time
}
