package postgres

import (
	"context"
	"fmt"

	"github.com/gestorfin/fiscal-api/internal/domain/repository"
)

var _ repository.SerieFiscalRepository = (*SerieFiscalRepo)(nil)

// SerieFiscalRepo alocação de numeração por série. A sequência só avança:
// números consumidos não voltam, mesmo quando a nota é rejeitada.
type SerieFiscalRepo struct {
	q Querier
}

// NewSerieFiscalRepository constrói o adaptador. Aceita pool ou tx (Querier).
func NewSerieFiscalRepository(q Querier) *SerieFiscalRepo {
	return &SerieFiscalRepo{q: q}
}

// ProximoNumero aloca o próximo número da série em um único comando.
// O upsert é atômico no servidor: dois chamadores concorrentes recebem
// números distintos sem precisar de lock na aplicação.
func (r *SerieFiscalRepo) ProximoNumero(ctx context.Context, tipo, serie string) (int64, error) {
	const q = `
		INSERT INTO series_fiscais (tipo, serie, proximo_numero, updated_at)
		VALUES ($1, $2, 2, now())
		ON CONFLICT (tipo, serie)
		DO UPDATE SET proximo_numero = series_fiscais.proximo_numero + 1, updated_at = now()
		RETURNING proximo_numero - 1`
	var numero int64
	if err := r.q.QueryRow(ctx, q, tipo, serie).Scan(&numero); err != nil {
		return 0, fmt.Errorf("alocar número da série %s/%s: %w", tipo, serie, err)
	}
	return numero, nil
}
