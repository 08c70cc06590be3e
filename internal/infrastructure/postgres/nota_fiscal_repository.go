package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gestorfin/fiscal-api/internal/domain"
	"github.com/gestorfin/fiscal-api/internal/domain/entity"
	"github.com/gestorfin/fiscal-api/internal/domain/repository"
)

var _ repository.NotaFiscalRepository = (*NotaFiscalRepo)(nil)

// NotaFiscalRepo implementa NotaFiscalRepository sobre PostgreSQL.
type NotaFiscalRepo struct {
	q Querier
}

// NewNotaFiscalRepository constrói o adaptador. Aceita pool ou tx (Querier).
func NewNotaFiscalRepository(q Querier) *NotaFiscalRepo {
	return &NotaFiscalRepo{q: q}
}

const colunasNota = `
	id, tipo, status, serie, numero,
	COALESCE(lote, ''), COALESCE(chave_acesso, ''), COALESCE(protocolo, ''),
	COALESCE(numero_nfse, ''), COALESCE(codigo_verificacao, ''),
	COALESCE(codigo_retorno, ''), COALESCE(motivo_retorno, ''),
	valor_total, COALESCE(xml_envio, ''), COALESCE(xml_retorno, ''),
	data_emissao, data_autorizacao, data_cancelamento, created_at, updated_at`

// Criar persiste a nota. A constraint única em (tipo, serie, numero) garante
// que um número de série nunca é gravado duas vezes.
func (r *NotaFiscalRepo) Criar(ctx context.Context, nota *entity.NotaFiscal) error {
	if nota.ID == "" {
		nota.ID = uuid.New().String()
	}
	const q = `
		INSERT INTO notas_fiscais
			(id, tipo, status, serie, numero, lote, chave_acesso, protocolo,
			 numero_nfse, codigo_verificacao, codigo_retorno, motivo_retorno,
			 valor_total, xml_envio, xml_retorno,
			 data_emissao, data_autorizacao, data_cancelamento, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, now(), now())`
	_, err := r.q.Exec(ctx, q,
		nota.ID, nota.Tipo, nota.Status, nota.Serie, nota.Numero,
		nullIfEmpty(nota.Lote), nullIfEmpty(nota.ChaveAcesso), nullIfEmpty(nota.Protocolo),
		nullIfEmpty(nota.NumeroNFSe), nullIfEmpty(nota.CodigoVerificacao),
		nullIfEmpty(nota.CodigoRetorno), nullIfEmpty(nota.MotivoRetorno),
		nota.ValorTotal, nullIfEmpty(nota.XMLEnvio), nullIfEmpty(nota.XMLRetorno),
		nota.DataEmissao, nota.DataAutorizacao, nota.DataCancelamento,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("número %d da série %s já usado: %w", nota.Numero, nota.Serie, domain.ErrConflito)
		}
		return fmt.Errorf("insert nota fiscal: %w", err)
	}
	return nil
}

// Atualizar grava os campos mutáveis da nota.
func (r *NotaFiscalRepo) Atualizar(ctx context.Context, nota *entity.NotaFiscal) error {
	const q = `
		UPDATE notas_fiscais
		SET status             = $2,
		    lote               = $3,
		    chave_acesso       = COALESCE($4, chave_acesso),
		    protocolo          = COALESCE($5, protocolo),
		    numero_nfse        = COALESCE($6, numero_nfse),
		    codigo_verificacao = COALESCE($7, codigo_verificacao),
		    codigo_retorno     = $8,
		    motivo_retorno     = $9,
		    xml_envio          = COALESCE($10, xml_envio),
		    xml_retorno        = COALESCE($11, xml_retorno),
		    data_autorizacao   = COALESCE($12, data_autorizacao),
		    data_cancelamento  = COALESCE($13, data_cancelamento),
		    updated_at         = now()
		WHERE id = $1`
	_, err := r.q.Exec(ctx, q,
		nota.ID, nota.Status, nullIfEmpty(nota.Lote),
		nullIfEmpty(nota.ChaveAcesso), nullIfEmpty(nota.Protocolo),
		nullIfEmpty(nota.NumeroNFSe), nullIfEmpty(nota.CodigoVerificacao),
		nullIfEmpty(nota.CodigoRetorno), nullIfEmpty(nota.MotivoRetorno),
		nullIfEmpty(nota.XMLEnvio), nullIfEmpty(nota.XMLRetorno),
		nota.DataAutorizacao, nota.DataCancelamento,
	)
	if err != nil {
		return fmt.Errorf("update nota fiscal: %w", err)
	}
	return nil
}

// BuscarPorID devolve (nil, nil) quando a nota não existe.
func (r *NotaFiscalRepo) BuscarPorID(ctx context.Context, id string) (*entity.NotaFiscal, error) {
	q := `SELECT ` + colunasNota + ` FROM notas_fiscais WHERE id = $1`
	nota, err := scanNota(r.q.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("buscar nota por id: %w", err)
	}
	return nota, nil
}

// BuscarPorChave localiza a NF-e pela chave de acesso de 44 dígitos.
func (r *NotaFiscalRepo) BuscarPorChave(ctx context.Context, chave string) (*entity.NotaFiscal, error) {
	q := `SELECT ` + colunasNota + ` FROM notas_fiscais WHERE chave_acesso = $1`
	nota, err := scanNota(r.q.QueryRow(ctx, q, chave))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("buscar nota por chave: %w", err)
	}
	return nota, nil
}

// Listar devolve as notas mais recentes, com filtros opcionais de tipo e status.
func (r *NotaFiscalRepo) Listar(ctx context.Context, tipo, status string, limite int) ([]*entity.NotaFiscal, error) {
	if limite <= 0 || limite > 200 {
		limite = 50
	}
	q := `SELECT ` + colunasNota + `
		FROM notas_fiscais
		WHERE ($1 = '' OR tipo = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3`
	rows, err := r.q.Query(ctx, q, tipo, status, limite)
	if err != nil {
		return nil, fmt.Errorf("listar notas: %w", err)
	}
	defer rows.Close()

	var lista []*entity.NotaFiscal
	for rows.Next() {
		nota, err := scanNota(rows)
		if err != nil {
			return nil, fmt.Errorf("scan nota: %w", err)
		}
		lista = append(lista, nota)
	}
	return lista, rows.Err()
}

func scanNota(row pgx.Row) (*entity.NotaFiscal, error) {
	var n entity.NotaFiscal
	err := row.Scan(
		&n.ID, &n.Tipo, &n.Status, &n.Serie, &n.Numero,
		&n.Lote, &n.ChaveAcesso, &n.Protocolo,
		&n.NumeroNFSe, &n.CodigoVerificacao,
		&n.CodigoRetorno, &n.MotivoRetorno,
		&n.ValorTotal, &n.XMLEnvio, &n.XMLRetorno,
		&n.DataEmissao, &n.DataAutorizacao, &n.DataCancelamento,
		&n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
