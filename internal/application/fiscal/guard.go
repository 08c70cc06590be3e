package fiscal

import (
	"fmt"
	"sync"

	"github.com/gestorfin/fiscal-api/internal/domain"
)

// guardaNotas impede operações concorrentes sobre a mesma nota dentro do
// processo (cancelar durante uma reconciliação em voo, por exemplo).
// A segunda operação recebe ErrConflito em vez de disputar o estado.
type guardaNotas struct {
	emCurso sync.Map // id da nota -> struct{}
}

func (g *guardaNotas) adquirir(id string) error {
	if _, ocupada := g.emCurso.LoadOrStore(id, struct{}{}); ocupada {
		return fmt.Errorf("outra operação em curso para a nota %s: %w", id, domain.ErrConflito)
	}
	return nil
}

func (g *guardaNotas) liberar(id string) {
	g.emCurso.Delete(id)
}
