package fiscal

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gestorfin/fiscal-api/internal/application/dto"
	"github.com/gestorfin/fiscal-api/internal/domain"
	"github.com/gestorfin/fiscal-api/internal/domain/entity"
	"github.com/gestorfin/fiscal-api/internal/domain/repository"
	"github.com/gestorfin/fiscal-api/internal/infrastructure/certstore"
	"github.com/gestorfin/fiscal-api/internal/infrastructure/nfe"
	"github.com/gestorfin/fiscal-api/pkg/config"
	"github.com/gestorfin/fiscal-api/pkg/logger"
)

// ServicoNFe orquestra o ciclo completo da NF-e modelo 55:
//
//	Validação → Número da série → XML → Assinatura → SOAP SEFAZ → Update DB
//
// O número da série é consumido antes do envio e nunca volta, mesmo em
// rejeição. Falha de transporte deixa a nota em transmitindo; a situação
// real é reconciliada depois via Consultar, sem reassinar nem renumerar.
type ServicoNFe struct {
	notas        repository.NotaFiscalRepository
	transmissoes repository.TransmissaoRepository
	emitentes    repository.EmitenteRepository
	tx           TxRunner
	transmissor  TransmissorNFe
	cred         *certstore.Credencial
	cfg          config.NFEConfig
	guarda       guardaNotas
	agora        func() time.Time
	log          *logger.Logger
}

// NovoServicoNFe constrói o serviço com todas as suas dependências.
func NovoServicoNFe(
	notas repository.NotaFiscalRepository,
	transmissoes repository.TransmissaoRepository,
	emitentes repository.EmitenteRepository,
	tx TxRunner,
	transmissor TransmissorNFe,
	cred *certstore.Credencial,
	cfg config.NFEConfig,
	log *logger.Logger,
) *ServicoNFe {
	return &ServicoNFe{
		notas:        notas,
		transmissoes: transmissoes,
		emitentes:    emitentes,
		tx:           tx,
		transmissor:  transmissor,
		cred:         cred,
		cfg:          cfg,
		agora:        time.Now,
		log:          log,
	}
}

// Emitir monta, assina e transmite uma NF-e de forma síncrona.
// Rejeição pela SEFAZ não é erro: a nota volta com status rejeitada e o
// código/motivo preenchidos. Só falhas locais e de infraestrutura viram erro.
func (s *ServicoNFe) Emitir(ctx context.Context, req dto.EmitirNFeRequest) (*entity.NotaFiscal, error) {
	// ═══════════════════════════════════════════════════════════════════════════
	// 1. Emitente ativo + validação antes de consumir número
	// ═══════════════════════════════════════════════════════════════════════════
	emitente, err := s.emitentes.BuscarAtivo(ctx)
	if err != nil {
		return nil, fmt.Errorf("buscar emitente: %w", err)
	}
	if emitente == nil {
		return nil, domain.ErrEmitenteNaoConfigurado
	}

	dados := s.montarDados(emitente, req)
	if err := nfe.Validar(dados); err != nil {
		return nil, err
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 2. Alocar número da série e criar a nota na mesma transação
	// ═══════════════════════════════════════════════════════════════════════════
	serie := strconv.Itoa(s.cfg.Serie)
	nota := &entity.NotaFiscal{
		Tipo:        entity.TipoNFe,
		Status:      entity.StatusRascunho,
		Serie:       serie,
		DataEmissao: dados.Emissao,
	}
	err = s.tx.RunEmissao(ctx, func(notas repository.NotaFiscalRepository, series repository.SerieFiscalRepository) error {
		numero, err := series.ProximoNumero(ctx, entity.TipoNFe, serie)
		if err != nil {
			return err
		}
		nota.Numero = numero
		return notas.Criar(ctx, nota)
	})
	if err != nil {
		return nil, err
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 3. XML + assinatura digital (falha aqui deixa a nota em rascunho)
	// ═══════════════════════════════════════════════════════════════════════════
	dados.Numero = nota.Numero
	gerada, err := nfe.MontarNFe(dados)
	if err != nil {
		return nil, s.falhaLocal(ctx, nota, err)
	}
	assinado, err := nfe.Assinar(gerada.XML, s.cred)
	if err != nil {
		return nil, s.falhaLocal(ctx, nota, err)
	}

	nota.ChaveAcesso = gerada.ChaveAcesso
	nota.ValorTotal = gerada.ValorTotal
	nota.XMLEnvio = nfe.MontarEnvioLote(assinado, strconv.FormatInt(nota.Numero, 10))
	nota.Status = entity.StatusTransmitindo
	nota.UpdatedAt = s.agora()
	if err := s.notas.Atualizar(ctx, nota); err != nil {
		return nil, err
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 4. Envio síncrono ao WS de autorização
	// ═══════════════════════════════════════════════════════════════════════════
	retorno, tempoMs, errEnvio := comRetentativa(ctx, func() (string, int64, error) {
		return s.transmissor.EnviarLote(ctx, nota.XMLEnvio)
	})
	if errEnvio != nil {
		s.registrar(ctx, nota.ID, entity.TransmissaoEnvio, nota.XMLEnvio, retorno, tempoMs, false, "", errEnvio.Error())
		s.log.Warn().Err(errEnvio).Str("nota", nota.ID).Str("chave", nota.ChaveAcesso).
			Msg("envio da NF-e falhou; nota fica em transmitindo para reconciliação")
		return nota, nil
	}
	resultado, err := nfe.AnalisarRetornoAutorizacao(retorno)
	if err != nil {
		s.registrar(ctx, nota.ID, entity.TransmissaoEnvio, nota.XMLEnvio, retorno, tempoMs, false, "", err.Error())
		return nota, nil
	}
	s.registrar(ctx, nota.ID, entity.TransmissaoEnvio, nota.XMLEnvio, retorno, tempoMs, true, resultado.Codigo, resultado.Motivo)

	// ═══════════════════════════════════════════════════════════════════════════
	// 5. Persistir o desfecho
	// ═══════════════════════════════════════════════════════════════════════════
	if err := s.aplicarResultado(ctx, nota, resultado, retorno); err != nil {
		return nil, err
	}
	s.log.Info().Str("nota", nota.ID).Str("chave", nota.ChaveAcesso).Str("status", nota.Status).
		Str("cstat", nota.CodigoRetorno).Msg("NF-e processada")
	return nota, nil
}

// Consultar reconcilia a situação da nota junto à SEFAZ. Notas com desfecho
// conclusivo devolvem o estado armazenado sem nenhuma chamada de rede.
func (s *ServicoNFe) Consultar(ctx context.Context, id string) (*entity.NotaFiscal, error) {
	nota, err := s.buscar(ctx, id)
	if err != nil {
		return nil, err
	}
	if !nota.DesfechoPendente() {
		return nota, nil
	}
	if err := s.guarda.adquirir(nota.ID); err != nil {
		return nil, err
	}
	defer s.guarda.liberar(nota.ID)

	if nota.ChaveAcesso == "" {
		return nil, fmt.Errorf("nota %s em transmitindo sem chave de acesso: %w", id, domain.ErrConflito)
	}
	pedido, err := nfe.MontarConsultaProtocolo(nota.ChaveAcesso, s.cfg.Ambiente)
	if err != nil {
		return nil, err
	}
	retorno, tempoMs, errEnvio := comRetentativa(ctx, func() (string, int64, error) {
		return s.transmissor.ConsultarProtocolo(ctx, pedido)
	})
	if errEnvio != nil {
		s.registrar(ctx, nota.ID, entity.TransmissaoConsulta, pedido, retorno, tempoMs, false, "", errEnvio.Error())
		return nil, errEnvio
	}
	resultado, err := nfe.AnalisarRetornoConsulta(retorno)
	if err != nil {
		s.registrar(ctx, nota.ID, entity.TransmissaoConsulta, pedido, retorno, tempoMs, false, "", err.Error())
		return nil, err
	}
	s.registrar(ctx, nota.ID, entity.TransmissaoConsulta, pedido, retorno, tempoMs, true, resultado.Codigo, resultado.Motivo)

	if err := s.aplicarResultado(ctx, nota, resultado, retorno); err != nil {
		return nil, err
	}
	return nota, nil
}

// Cancelar envia o evento 110111 para uma nota autorizada. Recusa da SEFAZ
// devolve ErroRejeicao e a nota permanece autorizada.
func (s *ServicoNFe) Cancelar(ctx context.Context, id, justificativa string) (*entity.NotaFiscal, error) {
	nota, err := s.buscar(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guarda.adquirir(nota.ID); err != nil {
		return nil, err
	}
	defer s.guarda.liberar(nota.ID)

	if !nota.PodeCancelar() {
		return nil, fmt.Errorf("nota %s no estado %s não pode ser cancelada: %w", id, nota.Status, domain.ErrConflito)
	}
	emitente, err := s.emitentes.BuscarAtivo(ctx)
	if err != nil {
		return nil, fmt.Errorf("buscar emitente: %w", err)
	}
	if emitente == nil {
		return nil, domain.ErrEmitenteNaoConfigurado
	}

	xmlEvento, err := nfe.MontarEventoCancelamento(nfe.EventoCancelamento{
		ChaveAcesso:   nota.ChaveAcesso,
		CNPJ:          emitente.CNPJ,
		Ambiente:      s.cfg.Ambiente,
		Protocolo:     nota.Protocolo,
		Justificativa: justificativa,
		Sequencia:     1,
		Quando:        s.agora(),
	})
	if err != nil {
		return nil, err
	}
	assinado, err := nfe.AssinarEvento(xmlEvento, s.cred)
	if err != nil {
		return nil, err
	}

	retorno, tempoMs, errEnvio := comRetentativa(ctx, func() (string, int64, error) {
		return s.transmissor.EnviarEvento(ctx, assinado)
	})
	if errEnvio != nil {
		s.registrar(ctx, nota.ID, entity.TransmissaoCancelamento, assinado, retorno, tempoMs, false, "", errEnvio.Error())
		return nil, errEnvio
	}
	resultado, err := nfe.AnalisarRetornoEvento(retorno)
	if err != nil {
		s.registrar(ctx, nota.ID, entity.TransmissaoCancelamento, assinado, retorno, tempoMs, false, "", err.Error())
		return nil, err
	}
	s.registrar(ctx, nota.ID, entity.TransmissaoCancelamento, assinado, retorno, tempoMs, true, resultado.Codigo, resultado.Motivo)

	if resultado.Situacao != entity.SituacaoCancelada {
		return nil, &domain.ErroRejeicao{Codigo: resultado.Codigo, Motivo: resultado.Motivo}
	}
	agora := s.agora()
	nota.Status = entity.StatusCancelada
	nota.CodigoRetorno = resultado.Codigo
	nota.MotivoRetorno = resultado.Motivo
	nota.DataCancelamento = &agora
	nota.UpdatedAt = agora
	if err := s.notas.Atualizar(ctx, nota); err != nil {
		return nil, err
	}
	s.log.Info().Str("nota", nota.ID).Str("chave", nota.ChaveAcesso).Msg("NF-e cancelada")
	return nota, nil
}

// StatusServico sonda o WS de status da SEFAZ (cStat 107 = em operação).
func (s *ServicoNFe) StatusServico(ctx context.Context) (*nfe.StatusServico, error) {
	pedido := nfe.MontarStatusServico(s.cfg.CodigoUF, s.cfg.Ambiente)
	retorno, tempoMs, errEnvio := comRetentativa(ctx, func() (string, int64, error) {
		return s.transmissor.ConsultarStatus(ctx, pedido)
	})
	if errEnvio != nil {
		s.registrar(ctx, "", entity.TransmissaoStatusServico, pedido, retorno, tempoMs, false, "", errEnvio.Error())
		return nil, errEnvio
	}
	status, err := nfe.AnalisarRetornoStatus(retorno)
	if err != nil {
		s.registrar(ctx, "", entity.TransmissaoStatusServico, pedido, retorno, tempoMs, false, "", err.Error())
		return nil, err
	}
	s.registrar(ctx, "", entity.TransmissaoStatusServico, pedido, retorno, tempoMs, true, status.Codigo, status.Motivo)
	return status, nil
}

// ── helpers privados ──────────────────────────────────────────────────────────

func (s *ServicoNFe) buscar(ctx context.Context, id string) (*entity.NotaFiscal, error) {
	nota, err := s.notas.BuscarPorID(ctx, id)
	if err != nil {
		return nil, err
	}
	if nota == nil {
		return nil, fmt.Errorf("nota %s: %w", id, domain.ErrNaoEncontrada)
	}
	if nota.Tipo != entity.TipoNFe {
		return nil, fmt.Errorf("nota %s é %s, não NF-e: %w", id, nota.Tipo, domain.ErrConflito)
	}
	return nota, nil
}

// falhaLocal registra o motivo e mantém a nota em rascunho. O número alocado
// é perdido: a próxima tentativa emite com número novo.
func (s *ServicoNFe) falhaLocal(ctx context.Context, nota *entity.NotaFiscal, causa error) error {
	nota.MotivoRetorno = causa.Error()
	nota.UpdatedAt = s.agora()
	if err := s.notas.Atualizar(ctx, nota); err != nil {
		s.log.Error().Err(err).Str("nota", nota.ID).Msg("não foi possível persistir a falha local")
	}
	return causa
}

func (s *ServicoNFe) aplicarResultado(ctx context.Context, nota *entity.NotaFiscal, r *entity.ResultadoTransmissao, xmlRetorno string) error {
	agora := s.agora()
	nota.CodigoRetorno = r.Codigo
	nota.MotivoRetorno = r.Motivo
	nota.XMLRetorno = xmlRetorno

	switch r.Situacao {
	case entity.SituacaoAutorizada:
		nota.Status = entity.StatusAutorizada
		nota.Protocolo = r.Protocolo
		nota.DataAutorizacao = &agora
	case entity.SituacaoCancelada:
		nota.Status = entity.StatusCancelada
		nota.DataCancelamento = &agora
	case entity.SituacaoRejeitada:
		nota.Status = entity.StatusRejeitada
	case entity.SituacaoProcessando:
		nota.Status = entity.StatusTransmitindo
		if r.Lote != "" {
			nota.Lote = r.Lote
		}
	}
	nota.UpdatedAt = agora
	return s.notas.Atualizar(ctx, nota)
}

// registrar grava a linha de auditoria da troca. Falha aqui não interrompe o
// fluxo principal, só gera log.
func (s *ServicoNFe) registrar(ctx context.Context, notaID, tipo, envio, retorno string, tempoMs int64, sucesso bool, codigo, mensagem string) {
	t := &entity.Transmissao{
		NotaFiscalID:    notaID,
		Tipo:            tipo,
		XMLEnvio:        envio,
		XMLRetorno:      retorno,
		Sucesso:         sucesso,
		CodigoStatus:    codigo,
		MensagemStatus:  mensagem,
		TempoRespostaMs: tempoMs,
	}
	if err := s.transmissoes.Registrar(ctx, t); err != nil {
		s.log.Error().Err(err).Str("nota", notaID).Str("tipo", tipo).Msg("falha ao registrar transmissão")
	}
}

func (s *ServicoNFe) montarDados(e *entity.Emitente, req dto.EmitirNFeRequest) nfe.DadosNFe {
	itens := make([]nfe.Item, len(req.Itens))
	for i, it := range req.Itens {
		unidade := it.Unidade
		if unidade == "" {
			unidade = "UN"
		}
		itens[i] = nfe.Item{
			Numero:        i + 1,
			Codigo:        it.Codigo,
			Descricao:     it.Descricao,
			NCM:           it.NCM,
			CFOP:          it.CFOP,
			Unidade:       unidade,
			Quantidade:    it.Quantidade,
			ValorUnitario: it.ValorUnitario,
			ValorTotal:    it.Quantidade.Mul(it.ValorUnitario).Round(2),
		}
	}

	indicadorIE := req.Destinatario.IndicadorIE
	if indicadorIE == 0 {
		indicadorIE = 9
	}
	var enderecoDest *nfe.Endereco
	if d := req.Destinatario.Endereco; d != nil {
		enderecoDest = &nfe.Endereco{
			Logradouro:      d.Logradouro,
			Numero:          d.Numero,
			Complemento:     d.Complemento,
			Bairro:          d.Bairro,
			CodigoMunicipio: d.CodigoMunicipio,
			Municipio:       d.Municipio,
			UF:              d.UF,
			CEP:             d.CEP,
		}
	}

	return nfe.DadosNFe{
		CodigoUF:         s.cfg.CodigoUF,
		Ambiente:         s.cfg.Ambiente,
		Serie:            s.cfg.Serie,
		NaturezaOperacao: req.NaturezaOperacao,
		Emissao:          s.agora(),
		Emitente: nfe.Emitente{
			CNPJ:              e.CNPJ,
			RazaoSocial:       e.RazaoSocial,
			NomeFantasia:      e.NomeFantasia,
			InscricaoEstadual: e.InscricaoEstadual,
			CRT:               e.CRT,
			Endereco: nfe.Endereco{
				Logradouro:      e.Endereco.Logradouro,
				Numero:          e.Endereco.Numero,
				Complemento:     e.Endereco.Complemento,
				Bairro:          e.Endereco.Bairro,
				CodigoMunicipio: e.Endereco.CodigoMunicipio,
				Municipio:       e.Endereco.Municipio,
				UF:              e.Endereco.UF,
				CEP:             e.Endereco.CEP,
			},
		},
		Destinatario: nfe.Destinatario{
			CPFCNPJ:     req.Destinatario.CPFCNPJ,
			RazaoSocial: req.Destinatario.RazaoSocial,
			Email:       req.Destinatario.Email,
			IndicadorIE: indicadorIE,
			Endereco:    enderecoDest,
		},
		Itens:                 itens,
		InformacoesAdicionais: req.InformacoesAdic,
	}
}
