package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gestorfin/fiscal-api/internal/application/dto"
	"github.com/gestorfin/fiscal-api/internal/application/fiscal"
)

// NFeHandler expõe a emissão e o ciclo de vida da NF-e.
type NFeHandler struct {
	servico *fiscal.ServicoNFe
}

// NewNFeHandler constrói o handler.
func NewNFeHandler(servico *fiscal.ServicoNFe) *NFeHandler {
	return &NFeHandler{servico: servico}
}

// Emitir monta, assina e transmite uma NF-e.
// POST /api/nfe
func (h *NFeHandler) Emitir(c *fiber.Ctx) error {
	var in dto.EmitirNFeRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "corpo inválido"})
	}
	nota, err := h.servico.Emitir(c.Context(), in)
	if err != nil {
		return respostaErro(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NotaFiscalFromEntity(nota))
}

// Consultar reconcilia a situação da nota junto à SEFAZ.
// POST /api/nfe/:id/consultar
func (h *NFeHandler) Consultar(c *fiber.Ctx) error {
	nota, err := h.servico.Consultar(c.Context(), c.Params("id"))
	if err != nil {
		return respostaErro(c, err)
	}
	return c.JSON(dto.NotaFiscalFromEntity(nota))
}

// Cancelar envia o evento de cancelamento de uma nota autorizada.
// POST /api/nfe/:id/cancelar
func (h *NFeHandler) Cancelar(c *fiber.Ctx) error {
	var in dto.CancelarRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "corpo inválido"})
	}
	nota, err := h.servico.Cancelar(c.Context(), c.Params("id"), in.Justificativa)
	if err != nil {
		return respostaErro(c, err)
	}
	return c.JSON(dto.NotaFiscalFromEntity(nota))
}

// StatusServico sonda o WS de status da SEFAZ.
// GET /api/nfe/status-servico
func (h *NFeHandler) StatusServico(c *fiber.Ctx) error {
	status, err := h.servico.StatusServico(c.Context())
	if err != nil {
		return respostaErro(c, err)
	}
	return c.JSON(dto.StatusServicoResponse{
		EmOperacao: status.EmOperacao,
		Codigo:     status.Codigo,
		Motivo:     status.Motivo,
		TempoMedio: status.TempoMedio,
	})
}
