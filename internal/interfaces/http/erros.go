package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/gestorfin/fiscal-api/internal/application/dto"
	"github.com/gestorfin/fiscal-api/internal/domain"
)

// respostaErro traduz os erros de domínio para status HTTP.
// Rejeição pela autoridade fiscal vira 422: o pedido era bem formado, a
// autoridade é que recusou.
func respostaErro(c *fiber.Ctx, err error) error {
	var validacao *domain.ErroValidacao
	if errors.As(err, &validacao) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: validacao.Error()})
	}
	var rejeicao *domain.ErroRejeicao
	if errors.As(err, &rejeicao) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "REJEITADA", Message: rejeicao.Error()})
	}

	switch {
	case errors.Is(err, domain.ErrDocumentoInvalido):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrNaoEncontrada):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, domain.ErrConflito):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	case errors.Is(err, domain.ErrRejeitada):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "REJEITADA", Message: err.Error()})
	case errors.Is(err, domain.ErrEmitenteNaoConfigurado):
		return c.Status(fiber.StatusPreconditionFailed).JSON(dto.ErrorResponse{Code: "EMITENTE_NAO_CONFIGURADO", Message: err.Error()})
	case errors.Is(err, domain.ErrTransporte):
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "TRANSPORTE", Message: err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}
