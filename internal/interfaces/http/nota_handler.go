package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gestorfin/fiscal-api/internal/application/dto"
	"github.com/gestorfin/fiscal-api/internal/application/fiscal"
)

// NotaHandler consultas de leitura comuns a NF-e e NFS-e.
type NotaHandler struct {
	servico *fiscal.ServicoNotas
}

// NewNotaHandler constrói o handler.
func NewNotaHandler(servico *fiscal.ServicoNotas) *NotaHandler {
	return &NotaHandler{servico: servico}
}

// Listar devolve as notas mais recentes.
// GET /api/notas?tipo=nfe&status=autorizada&limite=50
func (h *NotaHandler) Listar(c *fiber.Ctx) error {
	notas, err := h.servico.Listar(c.Context(), c.Query("tipo"), c.Query("status"), c.QueryInt("limite"))
	if err != nil {
		return respostaErro(c, err)
	}
	out := make([]dto.NotaFiscalResponse, len(notas))
	for i, n := range notas {
		out[i] = dto.NotaFiscalFromEntity(n)
	}
	return c.JSON(out)
}

// Buscar devolve uma nota pelo ID.
// GET /api/notas/:id
func (h *NotaHandler) Buscar(c *fiber.Ctx) error {
	nota, err := h.servico.Buscar(c.Context(), c.Params("id"))
	if err != nil {
		return respostaErro(c, err)
	}
	return c.JSON(dto.NotaFiscalFromEntity(nota))
}

// XML devolve os XMLs de envio e retorno da nota.
// GET /api/notas/:id/xml
func (h *NotaHandler) XML(c *fiber.Ctx) error {
	nota, err := h.servico.Buscar(c.Context(), c.Params("id"))
	if err != nil {
		return respostaErro(c, err)
	}
	return c.JSON(fiber.Map{
		"xml_envio":   nota.XMLEnvio,
		"xml_retorno": nota.XMLRetorno,
	})
}

// Transmissoes devolve a trilha de auditoria da nota.
// GET /api/notas/:id/transmissoes
func (h *NotaHandler) Transmissoes(c *fiber.Ctx) error {
	trilha, err := h.servico.Transmissoes(c.Context(), c.Params("id"))
	if err != nil {
		return respostaErro(c, err)
	}
	out := make([]dto.TransmissaoResponse, len(trilha))
	for i, t := range trilha {
		out[i] = dto.TransmissaoFromEntity(t)
	}
	return c.JSON(out)
}
