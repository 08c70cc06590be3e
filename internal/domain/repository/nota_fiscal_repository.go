package repository

import (
	"context"

	"github.com/gestorfin/fiscal-api/internal/domain/entity"
)

// NotaFiscalRepository persistência das notas fiscais.
// BuscarPorID e BuscarPorChave devolvem (nil, nil) quando não encontrada.
type NotaFiscalRepository interface {
	Criar(ctx context.Context, nota *entity.NotaFiscal) error
	Atualizar(ctx context.Context, nota *entity.NotaFiscal) error
	BuscarPorID(ctx context.Context, id string) (*entity.NotaFiscal, error)
	BuscarPorChave(ctx context.Context, chave string) (*entity.NotaFiscal, error)
	Listar(ctx context.Context, tipo, status string, limite int) ([]*entity.NotaFiscal, error)
}
