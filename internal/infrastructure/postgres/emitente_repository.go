package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/gestorfin/fiscal-api/internal/domain/entity"
	"github.com/gestorfin/fiscal-api/internal/domain/repository"
)

var _ repository.EmitenteRepository = (*EmitenteRepo)(nil)

// EmitenteRepo cadastro do emissor dos documentos fiscais.
type EmitenteRepo struct {
	q Querier
}

// NewEmitenteRepository constrói o adaptador. Aceita pool ou tx (Querier).
func NewEmitenteRepository(q Querier) *EmitenteRepo {
	return &EmitenteRepo{q: q}
}

// BuscarAtivo devolve o emitente ativo, ou (nil, nil) quando não há cadastro.
func (r *EmitenteRepo) BuscarAtivo(ctx context.Context) (*entity.Emitente, error) {
	const q = `
		SELECT id, cnpj, razao_social, COALESCE(nome_fantasia, ''),
		       COALESCE(inscricao_estadual, ''), COALESCE(inscricao_municipal, ''),
		       crt, regime_tributacao, optante_simples,
		       COALESCE(codigo_servico, ''), aliquota_iss,
		       COALESCE(logradouro, ''), COALESCE(numero, ''), COALESCE(complemento, ''),
		       COALESCE(bairro, ''), COALESCE(codigo_municipio, ''), COALESCE(municipio, ''),
		       COALESCE(uf, ''), COALESCE(cep, ''),
		       ativo, created_at, updated_at
		FROM emitentes
		WHERE ativo
		ORDER BY created_at
		LIMIT 1`
	var e entity.Emitente
	err := r.q.QueryRow(ctx, q).Scan(
		&e.ID, &e.CNPJ, &e.RazaoSocial, &e.NomeFantasia,
		&e.InscricaoEstadual, &e.InscricaoMunicipal,
		&e.CRT, &e.RegimeTributacao, &e.OptanteSimples,
		&e.CodigoServico, &e.AliquotaISS,
		&e.Endereco.Logradouro, &e.Endereco.Numero, &e.Endereco.Complemento,
		&e.Endereco.Bairro, &e.Endereco.CodigoMunicipio, &e.Endereco.Municipio,
		&e.Endereco.UF, &e.Endereco.CEP,
		&e.Ativo, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("buscar emitente ativo: %w", err)
	}
	return &e, nil
}
