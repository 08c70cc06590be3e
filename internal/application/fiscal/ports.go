package fiscal

import (
	"context"

	"github.com/gestorfin/fiscal-api/internal/domain/repository"
)

// TransmissorNFe abstrai o cliente SOAP da SEFAZ. Cada método devolve o XML
// de retorno (já sem o envelope) e a latência em milissegundos.
type TransmissorNFe interface {
	EnviarLote(ctx context.Context, xmlDados string) (string, int64, error)
	ConsultarProtocolo(ctx context.Context, xmlDados string) (string, int64, error)
	EnviarEvento(ctx context.Context, xmlDados string) (string, int64, error)
	ConsultarStatus(ctx context.Context, xmlDados string) (string, int64, error)
}

// TransmissorNFSe abstrai o cliente SOAP do lotenfe da prefeitura.
type TransmissorNFSe interface {
	EnviarLote(ctx context.Context, xmlPedido string) (string, int64, error)
	TestarEnvioLote(ctx context.Context, xmlPedido string) (string, int64, error)
	ConsultarNFe(ctx context.Context, xmlPedido string) (string, int64, error)
	ConsultarLote(ctx context.Context, xmlPedido string) (string, int64, error)
	Cancelar(ctx context.Context, xmlPedido string) (string, int64, error)
}

// TxRunner executa a alocação de número e a criação da nota na mesma transação.
type TxRunner interface {
	RunEmissao(ctx context.Context, fn func(
		notas repository.NotaFiscalRepository,
		series repository.SerieFiscalRepository,
	) error) error
}
