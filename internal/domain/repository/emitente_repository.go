package repository

import (
	"context"

	"github.com/gestorfin/fiscal-api/internal/domain/entity"
)

// EmitenteRepository cadastro do emissor. Devolve (nil, nil) quando não há emitente ativo.
type EmitenteRepository interface {
	BuscarAtivo(ctx context.Context) (*entity.Emitente, error)
}
