package fiscal

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestorfin/fiscal-api/internal/application/dto"
	"github.com/gestorfin/fiscal-api/internal/domain"
	"github.com/gestorfin/fiscal-api/internal/domain/entity"
	"github.com/gestorfin/fiscal-api/pkg/config"
)

type fakeTransmissorNFSe struct {
	envio    filaRespostas
	teste    filaRespostas
	consulta filaRespostas
	lote     filaRespostas
	cancela  filaRespostas
}

func (f *fakeTransmissorNFSe) EnviarLote(context.Context, string) (string, int64, error) {
	return f.envio.proxima()
}
func (f *fakeTransmissorNFSe) TestarEnvioLote(context.Context, string) (string, int64, error) {
	return f.teste.proxima()
}
func (f *fakeTransmissorNFSe) ConsultarNFe(context.Context, string) (string, int64, error) {
	return f.consulta.proxima()
}
func (f *fakeTransmissorNFSe) ConsultarLote(context.Context, string) (string, int64, error) {
	return f.lote.proxima()
}
func (f *fakeTransmissorNFSe) Cancelar(context.Context, string) (string, int64, error) {
	return f.cancela.proxima()
}

type ambienteNFSe struct {
	servico      *ServicoNFSe
	notas        *fakeNotas
	transmissoes *fakeTransmissoes
	transmissor  *fakeTransmissorNFSe
}

func novoAmbienteNFSe(t *testing.T, ambiente int) *ambienteNFSe {
	t.Helper()
	a := &ambienteNFSe{
		notas:        novoFakeNotas(),
		transmissoes: &fakeTransmissoes{},
		transmissor:  &fakeTransmissorNFSe{},
	}
	a.servico = NovoServicoNFSe(
		a.notas,
		a.transmissoes,
		&fakeEmitentes{emitente: emitenteTeste()},
		&fakeTx{notas: a.notas, series: &fakeSeries{}},
		a.transmissor,
		credencialTeste(t),
		config.NFSEConfig{Ambiente: ambiente, SerieRPS: "A", TipoRPS: 1},
		loggerTeste(),
	)
	return a
}

func requisicaoNFSeTeste() dto.EmitirNFSeRequest {
	return dto.EmitirNFSeRequest{
		Tomador: dto.TomadorDTO{
			CPFCNPJ:     "52998224725",
			RazaoSocial: "Cliente Teste",
		},
		Servico: dto.ServicoDTO{
			Discriminacao: "Consultoria em tecnologia",
			Valor:         decimal.RequireFromString("100.00"),
		},
	}
}

const retornoNFSeAutorizada = `<RetornoEnvioLoteRPS xmlns="http://www.prefeitura.sp.gov.br/nfe">
  <Cabecalho xmlns="" Versao="1"><Sucesso>true</Sucesso></Cabecalho>
  <ChaveNFeRPS xmlns=""><ChaveNFe><NumeroNFe>1234</NumeroNFe><CodigoVerificacao>ABCD-1234</CodigoVerificacao></ChaveNFe></ChaveNFeRPS>
</RetornoEnvioLoteRPS>`

const retornoNFSeLote = `<RetornoEnvioLoteRPS xmlns="http://www.prefeitura.sp.gov.br/nfe">
  <Cabecalho xmlns="" Versao="1"><Sucesso>true</Sucesso><NumeroLote>555</NumeroLote></Cabecalho>
</RetornoEnvioLoteRPS>`

func TestServicoNFSe_EmitirAutorizada(t *testing.T) {
	a := novoAmbienteNFSe(t, 1)
	a.transmissor.envio.programar(retornoNFSeAutorizada, nil)

	nota, err := a.servico.Emitir(context.Background(), requisicaoNFSeTeste())
	require.NoError(t, err)

	assert.Equal(t, entity.StatusAutorizada, nota.Status)
	assert.Equal(t, int64(1), nota.Numero)
	assert.Equal(t, "1234", nota.NumeroNFSe)
	assert.Equal(t, "ABCD-1234", nota.CodigoVerificacao)
	assert.NotNil(t, nota.DataAutorizacao)
	assert.True(t, nota.ValorTotal.Equal(decimal.RequireFromString("100.00")))
	assert.Contains(t, nota.XMLEnvio, "PedidoEnvioLoteRPS")
	assert.Contains(t, nota.XMLEnvio, "<Signature")

	require.Equal(t, 1, a.transmissoes.total())
	assert.Equal(t, entity.TransmissaoEnvio, a.transmissoes.ultima().Tipo)
}

func TestServicoNFSe_HomologacaoUsaMetodoDeTeste(t *testing.T) {
	a := novoAmbienteNFSe(t, 2)
	a.transmissor.teste.programar(retornoNFSeAutorizada, nil)

	_, err := a.servico.Emitir(context.Background(), requisicaoNFSeTeste())
	require.NoError(t, err)

	assert.Zero(t, a.transmissor.envio.totalChamadas())
	assert.Equal(t, 1, a.transmissor.teste.totalChamadas())
	assert.Equal(t, entity.TransmissaoTesteEnvio, a.transmissoes.ultima().Tipo)
}

func TestServicoNFSe_LoteAssincronoEReconciliacaoPorEstrategias(t *testing.T) {
	a := novoAmbienteNFSe(t, 1)
	a.transmissor.envio.programar(retornoNFSeLote, nil)

	nota, err := a.servico.Emitir(context.Background(), requisicaoNFSeTeste())
	require.NoError(t, err)
	assert.Equal(t, entity.StatusTransmitindo, nota.Status)
	assert.Equal(t, "555", nota.Lote)

	// Estratégia 1 relê o retorno do lote (inconclusivo), a 2 consulta o RPS
	// que ainda não reflete (a prefeitura responde isso como bloco Erro, e
	// mesmo assim não é rejeição), a 3 encontra a nota no lote processado.
	a.transmissor.consulta.programar(`<RetornoConsulta><Erro><Codigo>E160</Codigo><Descricao>RPS nao encontrado na base de dados</Descricao></Erro></RetornoConsulta>`, nil)
	a.transmissor.lote.programar(`<RetornoConsultaLote><NumeroNFe>9001</NumeroNFe><CodigoVerificacao>WXYZ-9001</CodigoVerificacao></RetornoConsultaLote>`, nil)

	reconciliada, err := a.servico.Consultar(context.Background(), nota.ID)
	require.NoError(t, err)

	assert.Equal(t, entity.StatusAutorizada, reconciliada.Status)
	assert.Equal(t, "9001", reconciliada.NumeroNFSe)
	assert.Equal(t, "WXYZ-9001", reconciliada.CodigoVerificacao)
	assert.Equal(t, 1, a.transmissor.consulta.totalChamadas())
	assert.Equal(t, 1, a.transmissor.lote.totalChamadas())

	// Trilha completa: envio, consulta do RPS e consulta do lote.
	trilha, err := a.transmissoes.ListarPorNota(context.Background(), nota.ID)
	require.NoError(t, err)
	require.Len(t, trilha, 3)
	assert.Equal(t, entity.TransmissaoEnvio, trilha[0].Tipo)
	assert.Equal(t, entity.TransmissaoConsulta, trilha[1].Tipo)
	assert.Equal(t, entity.TransmissaoConsultaLote, trilha[2].Tipo)
}

func TestServicoNFSe_ReconciliaPeloRetornoArmazenadoSemRede(t *testing.T) {
	a := novoAmbienteNFSe(t, 1)
	semente := &entity.NotaFiscal{
		Tipo:       entity.TipoNFSe,
		Status:     entity.StatusTransmitindo,
		Serie:      "A",
		Numero:     3,
		XMLRetorno: retornoNFSeAutorizada,
	}
	require.NoError(t, a.notas.Criar(context.Background(), semente))

	nota, err := a.servico.Consultar(context.Background(), semente.ID)
	require.NoError(t, err)

	assert.Equal(t, entity.StatusAutorizada, nota.Status)
	assert.Equal(t, "1234", nota.NumeroNFSe)
	assert.Zero(t, a.transmissor.consulta.totalChamadas(), "retorno armazenado já era conclusivo")
	assert.Zero(t, a.transmissor.lote.totalChamadas())
	assert.Zero(t, a.transmissoes.total(), "reconciliação local não gera linha de auditoria")
}

func TestServicoNFSe_RejeicaoReconhecidaEncerraCadeia(t *testing.T) {
	a := novoAmbienteNFSe(t, 1)
	semente := &entity.NotaFiscal{
		Tipo:   entity.TipoNFSe,
		Status: entity.StatusTransmitindo,
		Serie:  "A",
		Numero: 4,
		Lote:   "777",
	}
	require.NoError(t, a.notas.Criar(context.Background(), semente))

	a.transmissor.consulta.programar(`<RetornoConsulta><Erro><Codigo>1102</Codigo><Descricao>Assinatura do RPS invalida</Descricao></Erro></RetornoConsulta>`, nil)

	nota, err := a.servico.Consultar(context.Background(), semente.ID)
	require.NoError(t, err)

	assert.Equal(t, entity.StatusRejeitada, nota.Status)
	assert.Equal(t, "1102", nota.CodigoRetorno)
	assert.Zero(t, a.transmissor.lote.totalChamadas(), "rejeição reconhecida não segue para a próxima estratégia")
}

func TestServicoNFSe_Cancelar(t *testing.T) {
	a := novoAmbienteNFSe(t, 1)
	semente := &entity.NotaFiscal{
		Tipo:       entity.TipoNFSe,
		Status:     entity.StatusAutorizada,
		Serie:      "A",
		Numero:     5,
		NumeroNFSe: "1234",
	}
	require.NoError(t, a.notas.Criar(context.Background(), semente))

	a.transmissor.cancela.programar(`<RetornoCancelamentoNFe><Cabecalho><Sucesso>true</Sucesso></Cabecalho></RetornoCancelamentoNFe>`, nil)
	nota, err := a.servico.Cancelar(context.Background(), semente.ID)
	require.NoError(t, err)

	assert.Equal(t, entity.StatusCancelada, nota.Status)
	assert.NotNil(t, nota.DataCancelamento)
	assert.Equal(t, entity.TransmissaoCancelamento, a.transmissoes.ultima().Tipo)
}

func TestServicoNFSe_CancelarRecusadoMantemAutorizada(t *testing.T) {
	a := novoAmbienteNFSe(t, 1)
	semente := &entity.NotaFiscal{
		Tipo:       entity.TipoNFSe,
		Status:     entity.StatusAutorizada,
		Serie:      "A",
		Numero:     6,
		NumeroNFSe: "1234",
	}
	require.NoError(t, a.notas.Criar(context.Background(), semente))

	a.transmissor.cancela.programar(`<RetornoCancelamentoNFe><Erro><Codigo>1350</Codigo><Descricao>NFS-e ja cancelada</Descricao></Erro></RetornoCancelamentoNFe>`, nil)
	_, err := a.servico.Cancelar(context.Background(), semente.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRejeitada)

	persistida, errBusca := a.notas.BuscarPorID(context.Background(), semente.ID)
	require.NoError(t, errBusca)
	assert.Equal(t, entity.StatusAutorizada, persistida.Status)
}

func TestServicoNFSe_CancelarEstadoInvalido(t *testing.T) {
	a := novoAmbienteNFSe(t, 1)
	semente := &entity.NotaFiscal{
		Tipo:   entity.TipoNFSe,
		Status: entity.StatusRascunho,
		Serie:  "A",
		Numero: 7,
	}
	require.NoError(t, a.notas.Criar(context.Background(), semente))

	_, err := a.servico.Cancelar(context.Background(), semente.ID)
	assert.ErrorIs(t, err, domain.ErrConflito)
	assert.Zero(t, a.transmissor.cancela.totalChamadas())
}

func TestServicoNFSe_TipoErradoConflita(t *testing.T) {
	a := novoAmbienteNFSe(t, 1)
	semente := &entity.NotaFiscal{
		Tipo:   entity.TipoNFe,
		Status: entity.StatusAutorizada,
		Serie:  "1",
		Numero: 8,
	}
	require.NoError(t, a.notas.Criar(context.Background(), semente))

	_, err := a.servico.Consultar(context.Background(), semente.ID)
	assert.ErrorIs(t, err, domain.ErrConflito)
}

func TestServicoNFSe_TestarConexao(t *testing.T) {
	a := novoAmbienteNFSe(t, 1)
	a.transmissor.lote.programar(`<RetornoConsultaLote><Cabecalho><Sucesso>false</Sucesso></Cabecalho><Erro><Codigo>1203</Codigo><Descricao>Lote nao encontrado</Descricao></Erro></RetornoConsultaLote>`, nil)

	require.NoError(t, a.servico.TestarConexao(context.Background()))
	require.Equal(t, 1, a.transmissoes.total())
	linha := a.transmissoes.ultima()
	assert.Equal(t, entity.TransmissaoStatusServico, linha.Tipo)
	assert.Empty(t, linha.NotaFiscalID)
}
