package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gestorfin/fiscal-api/internal/domain/repository"
)

// TxRunner executa callbacks dentro de uma transação PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner constrói o runner com o pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunEmissao abre uma transação com os repositórios da emissão: a alocação do
// número da série e a criação da nota acontecem juntas ou nenhuma acontece.
func (r *TxRunner) RunEmissao(ctx context.Context, fn func(
	notas repository.NotaFiscalRepository,
	series repository.SerieFiscalRepository,
) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	notas := NewNotaFiscalRepository(tx)
	series := NewSerieFiscalRepository(tx)

	if err := fn(notas, series); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
