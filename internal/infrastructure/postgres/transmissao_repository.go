package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gestorfin/fiscal-api/internal/domain/entity"
	"github.com/gestorfin/fiscal-api/internal/domain/repository"
)

var _ repository.TransmissaoRepository = (*TransmissaoRepo)(nil)

// TransmissaoRepo trilha de auditoria das trocas com a autoridade fiscal.
// Só insere e lê: registros nunca são alterados.
type TransmissaoRepo struct {
	q Querier
}

// NewTransmissaoRepository constrói o adaptador. Aceita pool ou tx (Querier).
func NewTransmissaoRepository(q Querier) *TransmissaoRepo {
	return &TransmissaoRepo{q: q}
}

// Registrar grava uma troca com a autoridade fiscal.
func (r *TransmissaoRepo) Registrar(ctx context.Context, t *entity.Transmissao) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	const q = `
		INSERT INTO transmissoes
			(id, nota_fiscal_id, tipo, xml_envio, xml_retorno, sucesso,
			 codigo_status, mensagem_status, tempo_resposta_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`
	_, err := r.q.Exec(ctx, q,
		t.ID, nullIfEmpty(t.NotaFiscalID), t.Tipo,
		nullIfEmpty(t.XMLEnvio), nullIfEmpty(t.XMLRetorno), t.Sucesso,
		nullIfEmpty(t.CodigoStatus), nullIfEmpty(t.MensagemStatus), t.TempoRespostaMs,
	)
	if err != nil {
		return fmt.Errorf("insert transmissao: %w", err)
	}
	return nil
}

// ListarPorNota devolve a trilha completa de uma nota, em ordem cronológica.
func (r *TransmissaoRepo) ListarPorNota(ctx context.Context, notaFiscalID string) ([]*entity.Transmissao, error) {
	const q = `
		SELECT id, COALESCE(nota_fiscal_id::text, ''), tipo,
		       COALESCE(xml_envio, ''), COALESCE(xml_retorno, ''), sucesso,
		       COALESCE(codigo_status, ''), COALESCE(mensagem_status, ''),
		       tempo_resposta_ms, created_at
		FROM transmissoes
		WHERE nota_fiscal_id = $1
		ORDER BY created_at`
	rows, err := r.q.Query(ctx, q, notaFiscalID)
	if err != nil {
		return nil, fmt.Errorf("listar transmissoes: %w", err)
	}
	defer rows.Close()

	var lista []*entity.Transmissao
	for rows.Next() {
		var t entity.Transmissao
		if err := rows.Scan(
			&t.ID, &t.NotaFiscalID, &t.Tipo,
			&t.XMLEnvio, &t.XMLRetorno, &t.Sucesso,
			&t.CodigoStatus, &t.MensagemStatus,
			&t.TempoRespostaMs, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transmissao: %w", err)
		}
		lista = append(lista, &t)
	}
	return lista, rows.Err()
}
