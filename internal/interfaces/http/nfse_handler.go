package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gestorfin/fiscal-api/internal/application/dto"
	"github.com/gestorfin/fiscal-api/internal/application/fiscal"
)

// NFSeHandler expõe a emissão e o ciclo de vida da NFS-e paulistana.
type NFSeHandler struct {
	servico *fiscal.ServicoNFSe
}

// NewNFSeHandler constrói o handler.
func NewNFSeHandler(servico *fiscal.ServicoNFSe) *NFSeHandler {
	return &NFSeHandler{servico: servico}
}

// Emitir monta, assina e envia um RPS à prefeitura.
// POST /api/nfse
func (h *NFSeHandler) Emitir(c *fiber.Ctx) error {
	var in dto.EmitirNFSeRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "corpo inválido"})
	}
	nota, err := h.servico.Emitir(c.Context(), in)
	if err != nil {
		return respostaErro(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NotaFiscalFromEntity(nota))
}

// Consultar reconcilia a situação da nota junto à prefeitura.
// POST /api/nfse/:id/consultar
func (h *NFSeHandler) Consultar(c *fiber.Ctx) error {
	nota, err := h.servico.Consultar(c.Context(), c.Params("id"))
	if err != nil {
		return respostaErro(c, err)
	}
	return c.JSON(dto.NotaFiscalFromEntity(nota))
}

// Cancelar pede o cancelamento de uma NFS-e autorizada.
// POST /api/nfse/:id/cancelar
func (h *NFSeHandler) Cancelar(c *fiber.Ctx) error {
	nota, err := h.servico.Cancelar(c.Context(), c.Params("id"))
	if err != nil {
		return respostaErro(c, err)
	}
	return c.JSON(dto.NotaFiscalFromEntity(nota))
}

// TestarConexao sonda o lotenfe da prefeitura.
// GET /api/nfse/testar-conexao
func (h *NFSeHandler) TestarConexao(c *fiber.Ctx) error {
	if err := h.servico.TestarConexao(c.Context()); err != nil {
		return respostaErro(c, err)
	}
	return c.JSON(fiber.Map{"alcancavel": true})
}
