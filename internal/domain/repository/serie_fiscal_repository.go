package repository

import "context"

// SerieFiscalRepository alocação do próximo número de uma série.
// ProximoNumero deve ser atômico: dois chamadores concorrentes nunca recebem
// o mesmo número, e números consumidos não voltam (mesmo após rejeição).
type SerieFiscalRepository interface {
	ProximoNumero(ctx context.Context, tipo, serie string) (int64, error)
}
