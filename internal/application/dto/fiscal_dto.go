package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/gestorfin/fiscal-api/internal/domain/entity"
)

// ── NF-e ──────────────────────────────────────────────────────────────────────

// EmitirNFeRequest body para POST /api/nfe.
type EmitirNFeRequest struct {
	NaturezaOperacao string          `json:"natureza_operacao"`
	Destinatario     DestinatarioDTO `json:"destinatario"`
	Itens            []ItemNFeDTO    `json:"itens"`
	InformacoesAdic  string          `json:"informacoes_adicionais,omitempty"`
}

// DestinatarioDTO destinatário da NF-e.
type DestinatarioDTO struct {
	CPFCNPJ     string       `json:"cpf_cnpj"`
	RazaoSocial string       `json:"razao_social"`
	Email       string       `json:"email,omitempty"`
	IndicadorIE int          `json:"indicador_ie,omitempty"` // 9 = não contribuinte
	Endereco    *EnderecoDTO `json:"endereco,omitempty"`
}

// EnderecoDTO endereço opcional do destinatário.
type EnderecoDTO struct {
	Logradouro      string `json:"logradouro"`
	Numero          string `json:"numero"`
	Complemento     string `json:"complemento,omitempty"`
	Bairro          string `json:"bairro"`
	CodigoMunicipio string `json:"codigo_municipio"`
	Municipio       string `json:"municipio"`
	UF              string `json:"uf"`
	CEP             string `json:"cep"`
}

// ItemNFeDTO linha de produto da NF-e.
type ItemNFeDTO struct {
	Codigo        string          `json:"codigo"`
	Descricao     string          `json:"descricao"`
	NCM           string          `json:"ncm"`
	CFOP          string          `json:"cfop"`
	Unidade       string          `json:"unidade"`
	Quantidade    decimal.Decimal `json:"quantidade"`
	ValorUnitario decimal.Decimal `json:"valor_unitario"`
}

// CancelarRequest body para POST /api/nfe/:id/cancelar e /api/nfse/:id/cancelar.
type CancelarRequest struct {
	Justificativa string `json:"justificativa"`
}

// ── NFS-e ─────────────────────────────────────────────────────────────────────

// EmitirNFSeRequest body para POST /api/nfse.
type EmitirNFSeRequest struct {
	Tomador TomadorDTO `json:"tomador"`
	Servico ServicoDTO `json:"servico"`
}

// TomadorDTO tomador do serviço. Só o documento é obrigatório.
type TomadorDTO struct {
	CPFCNPJ         string `json:"cpf_cnpj"`
	RazaoSocial     string `json:"razao_social,omitempty"`
	Email           string `json:"email,omitempty"`
	Endereco        string `json:"endereco,omitempty"`
	Numero          string `json:"numero,omitempty"`
	Complemento     string `json:"complemento,omitempty"`
	Bairro          string `json:"bairro,omitempty"`
	CodigoMunicipio string `json:"codigo_municipio,omitempty"`
	UF              string `json:"uf,omitempty"`
	CEP             string `json:"cep,omitempty"`
}

// ServicoDTO serviço prestado. CodigoServico e AliquotaISS, quando vazios,
// vêm do cadastro do emitente.
type ServicoDTO struct {
	Discriminacao string          `json:"discriminacao"`
	Valor         decimal.Decimal `json:"valor"`
	ValorDeducoes decimal.Decimal `json:"valor_deducoes,omitempty"`
	CodigoServico string          `json:"codigo_servico,omitempty"`
	AliquotaISS   decimal.Decimal `json:"aliquota_iss,omitempty"`
	ISSRetido     bool            `json:"iss_retido,omitempty"`
}

// ── Respostas ─────────────────────────────────────────────────────────────────

// NotaFiscalResponse nota fiscal em respostas (sem os XMLs, que têm endpoint próprio).
type NotaFiscalResponse struct {
	ID                string          `json:"id"`
	Tipo              string          `json:"tipo"`
	Status            string          `json:"status"`
	Serie             string          `json:"serie"`
	Numero            int64           `json:"numero"`
	Lote              string          `json:"lote,omitempty"`
	ChaveAcesso       string          `json:"chave_acesso,omitempty"`
	Protocolo         string          `json:"protocolo,omitempty"`
	NumeroNFSe        string          `json:"numero_nfse,omitempty"`
	CodigoVerificacao string          `json:"codigo_verificacao,omitempty"`
	CodigoRetorno     string          `json:"codigo_retorno,omitempty"`
	MotivoRetorno     string          `json:"motivo_retorno,omitempty"`
	ValorTotal        decimal.Decimal `json:"valor_total"`
	DataEmissao       time.Time       `json:"data_emissao"`
	DataAutorizacao   *time.Time      `json:"data_autorizacao,omitempty"`
	DataCancelamento  *time.Time      `json:"data_cancelamento,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// NotaFiscalFromEntity converte a entidade para o DTO de resposta.
func NotaFiscalFromEntity(n *entity.NotaFiscal) NotaFiscalResponse {
	return NotaFiscalResponse{
		ID:                n.ID,
		Tipo:              n.Tipo,
		Status:            n.Status,
		Serie:             n.Serie,
		Numero:            n.Numero,
		Lote:              n.Lote,
		ChaveAcesso:       n.ChaveAcesso,
		Protocolo:         n.Protocolo,
		NumeroNFSe:        n.NumeroNFSe,
		CodigoVerificacao: n.CodigoVerificacao,
		CodigoRetorno:     n.CodigoRetorno,
		MotivoRetorno:     n.MotivoRetorno,
		ValorTotal:        n.ValorTotal,
		DataEmissao:       n.DataEmissao,
		DataAutorizacao:   n.DataAutorizacao,
		DataCancelamento:  n.DataCancelamento,
		CreatedAt:         n.CreatedAt,
		UpdatedAt:         n.UpdatedAt,
	}
}

// TransmissaoResponse registro de auditoria em respostas.
type TransmissaoResponse struct {
	ID              string    `json:"id"`
	Tipo            string    `json:"tipo"`
	Sucesso         bool      `json:"sucesso"`
	CodigoStatus    string    `json:"codigo_status,omitempty"`
	MensagemStatus  string    `json:"mensagem_status,omitempty"`
	TempoRespostaMs int64     `json:"tempo_resposta_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// TransmissaoFromEntity converte a entidade para o DTO de resposta.
func TransmissaoFromEntity(t *entity.Transmissao) TransmissaoResponse {
	return TransmissaoResponse{
		ID:              t.ID,
		Tipo:            t.Tipo,
		Sucesso:         t.Sucesso,
		CodigoStatus:    t.CodigoStatus,
		MensagemStatus:  t.MensagemStatus,
		TempoRespostaMs: t.TempoRespostaMs,
		CreatedAt:       t.CreatedAt,
	}
}

// StatusServicoResponse resposta do status do serviço da SEFAZ.
type StatusServicoResponse struct {
	EmOperacao bool   `json:"em_operacao"`
	Codigo     string `json:"codigo"`
	Motivo     string `json:"motivo"`
	TempoMedio string `json:"tempo_medio,omitempty"`
}
