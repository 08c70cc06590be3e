package entity

// Situação apurada de uma transmissão ou reconciliação.
const (
	SituacaoAutorizada  = "autorizada"
	SituacaoRejeitada   = "rejeitada"
	SituacaoProcessando = "processando" // desfecho ainda não disponível; reconciliar depois
	SituacaoCancelada   = "cancelada"
)

// ResultadoTransmissao é o desfecho etiquetado de um envio, consulta ou evento.
// Processando não é erro: sinaliza ao chamador que deve reconciliar mais tarde.
type ResultadoTransmissao struct {
	Situacao          string
	Codigo            string // cStat (NF-e) ou código de erro (NFS-e)
	Motivo            string
	Protocolo         string // nProt (NF-e)
	NumeroNFSe        string
	CodigoVerificacao string
	Lote              string // número do lote quando o processamento é assíncrono
}

// Conclusivo indica se o resultado encerra a reconciliação.
func (r *ResultadoTransmissao) Conclusivo() bool {
	return r.Situacao != SituacaoProcessando
}
