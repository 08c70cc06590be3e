package fiscal

import (
	"context"
	"fmt"

	"github.com/gestorfin/fiscal-api/internal/domain"
	"github.com/gestorfin/fiscal-api/internal/domain/entity"
	"github.com/gestorfin/fiscal-api/internal/domain/repository"
)

// ServicoNotas consultas de leitura sobre notas e trilha de auditoria,
// comuns a NF-e e NFS-e.
type ServicoNotas struct {
	notas        repository.NotaFiscalRepository
	transmissoes repository.TransmissaoRepository
}

// NovoServicoNotas constrói o serviço de leitura.
func NovoServicoNotas(notas repository.NotaFiscalRepository, transmissoes repository.TransmissaoRepository) *ServicoNotas {
	return &ServicoNotas{notas: notas, transmissoes: transmissoes}
}

// Buscar devolve a nota pelo ID.
func (s *ServicoNotas) Buscar(ctx context.Context, id string) (*entity.NotaFiscal, error) {
	nota, err := s.notas.BuscarPorID(ctx, id)
	if err != nil {
		return nil, err
	}
	if nota == nil {
		return nil, fmt.Errorf("nota %s: %w", id, domain.ErrNaoEncontrada)
	}
	return nota, nil
}

// Listar devolve as notas mais recentes, com filtros opcionais de tipo e status.
func (s *ServicoNotas) Listar(ctx context.Context, tipo, status string, limite int) ([]*entity.NotaFiscal, error) {
	return s.notas.Listar(ctx, tipo, status, limite)
}

// Transmissoes devolve a trilha de auditoria de uma nota, em ordem cronológica.
func (s *ServicoNotas) Transmissoes(ctx context.Context, notaID string) ([]*entity.Transmissao, error) {
	if _, err := s.Buscar(ctx, notaID); err != nil {
		return nil, err
	}
	return s.transmissoes.ListarPorNota(ctx, notaID)
}
