package repository

import (
	"context"

	"github.com/gestorfin/fiscal-api/internal/domain/entity"
)

// TransmissaoRepository trilha de auditoria das trocas com a autoridade fiscal.
// Registros são imutáveis: só inserção e leitura.
type TransmissaoRepository interface {
	Registrar(ctx context.Context, t *entity.Transmissao) error
	ListarPorNota(ctx context.Context, notaFiscalID string) ([]*entity.Transmissao, error)
}
