package fiscal

import (
	"context"
	"errors"
	"time"

	"github.com/gestorfin/fiscal-api/internal/domain"
)

const maxTentativas = 3

// comRetentativa repete uma chamada SOAP em falhas de transporte, com espera
// crescente entre tentativas. Só ErrTransporte é retentado: o payload já
// assinado é reenviado como está, nunca reassinado nem renumerado.
func comRetentativa(ctx context.Context, chamada func() (string, int64, error)) (string, int64, error) {
	var (
		retorno string
		tempoMs int64
		err     error
	)
	for tentativa := 1; tentativa <= maxTentativas; tentativa++ {
		retorno, tempoMs, err = chamada()
		if err == nil || !errors.Is(err, domain.ErrTransporte) {
			return retorno, tempoMs, err
		}
		if tentativa == maxTentativas {
			break
		}
		espera := time.Duration(tentativa) * 500 * time.Millisecond
		select {
		case <-ctx.Done():
			return retorno, tempoMs, err
		case <-time.After(espera):
		}
	}
	return retorno, tempoMs, err
}
