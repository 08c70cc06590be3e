package entity

import "time"

// Tipos de transmissão registrados na trilha de auditoria.
const (
	TransmissaoEnvio         = "envio"
	TransmissaoTesteEnvio    = "teste_envio"
	TransmissaoConsulta      = "consulta"
	TransmissaoConsultaLote  = "consulta_lote"
	TransmissaoCancelamento  = "cancelamento"
	TransmissaoStatusServico = "status_servico"
)

// Transmissao é o registro imutável de uma troca com a autoridade fiscal.
// Toda chamada SOAP gera uma linha, com sucesso ou sem.
type Transmissao struct {
	ID              string
	NotaFiscalID    string // vazio para operações sem nota (status de serviço)
	Tipo            string
	XMLEnvio        string
	XMLRetorno      string
	Sucesso         bool
	CodigoStatus    string
	MensagemStatus  string
	TempoRespostaMs int64
	CreatedAt       time.Time
}
