package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de documento fiscal.
const (
	TipoNFe  = "nfe"  // NF-e modelo 55 (mercadorias, SEFAZ)
	TipoNFSe = "nfse" // NFS-e (serviços, Prefeitura de SP)
)

// Ciclo de vida da nota.
// rascunho -> transmitindo -> autorizada | rejeitada; autorizada -> cancelada.
const (
	StatusRascunho     = "rascunho"     // Número alocado, ainda não transmitida
	StatusTransmitindo = "transmitindo" // Enviada, desfecho pendente (lote assíncrono ou falha de rede)
	StatusAutorizada   = "autorizada"   // Aceita pela autoridade fiscal
	StatusRejeitada    = "rejeitada"    // Recusada; o número não é reutilizado
	StatusCancelada    = "cancelada"    // Cancelamento homologado
)

// NotaFiscal representa um documento fiscal emitido (NF-e ou NFS-e).
type NotaFiscal struct {
	ID                string
	Tipo              string
	Status            string
	Serie             string
	Numero            int64 // nNF (NF-e) ou número do RPS (NFS-e)
	Lote              string
	ChaveAcesso       string // NF-e: 44 dígitos
	Protocolo         string // NF-e: nProt da autorização
	NumeroNFSe        string // NFS-e: número atribuído pela prefeitura
	CodigoVerificacao string // NFS-e
	CodigoRetorno     string // Último cStat / código de erro da autoridade
	MotivoRetorno     string
	ValorTotal        decimal.Decimal
	XMLEnvio          string
	XMLRetorno        string
	DataEmissao       time.Time
	DataAutorizacao   *time.Time
	DataCancelamento  *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PodeCancelar indica se a nota está em estado cancelável.
func (n *NotaFiscal) PodeCancelar() bool {
	return n.Status == StatusAutorizada
}

// DesfechoPendente indica que a situação real ainda precisa ser reconciliada.
func (n *NotaFiscal) DesfechoPendente() bool {
	return n.Status == StatusTransmitindo
}
