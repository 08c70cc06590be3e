package fiscal

import (
	"context"
	"fmt"
	"time"

	"github.com/gestorfin/fiscal-api/internal/application/dto"
	"github.com/gestorfin/fiscal-api/internal/domain"
	"github.com/gestorfin/fiscal-api/internal/domain/entity"
	"github.com/gestorfin/fiscal-api/internal/domain/repository"
	"github.com/gestorfin/fiscal-api/internal/infrastructure/certstore"
	"github.com/gestorfin/fiscal-api/internal/infrastructure/nfse"
	"github.com/gestorfin/fiscal-api/pkg/config"
	"github.com/gestorfin/fiscal-api/pkg/logger"
)

// ServicoNFSe orquestra o ciclo da NFS-e paulistana:
//
//	Validação → Número do RPS → Assinatura do RPS → XML → XMLDSIG → SOAP lotenfe
//
// O lote da prefeitura pode processar de forma assíncrona; nesse caso a nota
// fica em transmitindo com o número do lote guardado e Consultar reconcilia
// depois por três estratégias, da mais barata para a mais cara:
//
//  1. Reinterpretar o último retorno armazenado (zero rede).
//  2. Consultar pela chave do RPS (inscrição + série + número).
//  3. Consultar o lote, quando o número do lote é conhecido.
type ServicoNFSe struct {
	notas        repository.NotaFiscalRepository
	transmissoes repository.TransmissaoRepository
	emitentes    repository.EmitenteRepository
	tx           TxRunner
	transmissor  TransmissorNFSe
	cred         *certstore.Credencial
	cfg          config.NFSEConfig
	guarda       guardaNotas
	agora        func() time.Time
	log          *logger.Logger
}

// NovoServicoNFSe constrói o serviço com todas as suas dependências.
func NovoServicoNFSe(
	notas repository.NotaFiscalRepository,
	transmissoes repository.TransmissaoRepository,
	emitentes repository.EmitenteRepository,
	tx TxRunner,
	transmissor TransmissorNFSe,
	cred *certstore.Credencial,
	cfg config.NFSEConfig,
	log *logger.Logger,
) *ServicoNFSe {
	return &ServicoNFSe{
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

// Emitir monta, assina e envia um lote com um único RPS. Em homologação
// (ambiente 2) o envio usa o método de teste da prefeitura, que valida o
// lote sem gerar NFS-e; a trilha de auditoria registra o tipo teste_envio.
func (s *ServicoNFSe) Emitir(ctx context.Context, req dto.EmitirNFSeRequest) (*entity.NotaFiscal, error) {
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
	dados.RPS.Numero = 1 // provisório, só para a validação
	if err := nfse.Validar(dados); err != nil {
		return nil, err
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 2. Alocar número do RPS e criar a nota na mesma transação
	// ═══════════════════════════════════════════════════════════════════════════
	nota := &entity.NotaFiscal{
		Tipo:        entity.TipoNFSe,
		Status:      entity.StatusRascunho,
		Serie:       s.cfg.SerieRPS,
		DataEmissao: dados.RPS.Emissao,
	}
	err = s.tx.RunEmissao(ctx, func(notas repository.NotaFiscalRepository, series repository.SerieFiscalRepository) error {
		numero, err := series.ProximoNumero(ctx, entity.TipoNFSe, s.cfg.SerieRPS)
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
	// 3. Assinatura do RPS + XML do lote + XMLDSIG
	// ═══════════════════════════════════════════════════════════════════════════
	dados.RPS.Numero = nota.Numero
	assinaturaRPS, err := nfse.AssinarRPS(dados, s.cred)
	if err != nil {
		return nil, s.falhaLocal(ctx, nota, err)
	}
	pedido, err := nfse.MontarPedidoEnvioLote(dados, assinaturaRPS)
	if err != nil {
		return nil, s.falhaLocal(ctx, nota, err)
	}
	assinado, err := nfse.AssinarXML(pedido, s.cred)
	if err != nil {
		return nil, s.falhaLocal(ctx, nota, err)
	}

	nota.ValorTotal = dados.Servico.ValorServicos.Round(2)
	nota.XMLEnvio = assinado
	nota.Status = entity.StatusTransmitindo
	nota.UpdatedAt = s.agora()
	if err := s.notas.Atualizar(ctx, nota); err != nil {
		return nil, err
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 4. Envio ao lotenfe (teste em homologação, real em produção)
	// ═══════════════════════════════════════════════════════════════════════════
	enviar := s.transmissor.EnviarLote
	tipoTransmissao := entity.TransmissaoEnvio
	if s.cfg.Ambiente == 2 {
		enviar = s.transmissor.TestarEnvioLote
		tipoTransmissao = entity.TransmissaoTesteEnvio
	}
	retorno, tempoMs, errEnvio := comRetentativa(ctx, func() (string, int64, error) {
		return enviar(ctx, nota.XMLEnvio)
	})
	if errEnvio != nil {
		s.registrar(ctx, nota.ID, tipoTransmissao, nota.XMLEnvio, retorno, tempoMs, false, "", errEnvio.Error())
		s.log.Warn().Err(errEnvio).Str("nota", nota.ID).Int64("rps", nota.Numero).
			Msg("envio do RPS falhou; nota fica em transmitindo para reconciliação")
		return nota, nil
	}
	resultado, err := nfse.AnalisarRetorno(retorno)
	if err != nil {
		s.registrar(ctx, nota.ID, tipoTransmissao, nota.XMLEnvio, retorno, tempoMs, false, "", err.Error())
		return nota, nil
	}
	s.registrar(ctx, nota.ID, tipoTransmissao, nota.XMLEnvio, retorno, tempoMs, true, resultado.Codigo, resultado.Motivo)

	// ═══════════════════════════════════════════════════════════════════════════
	// 5. Persistir o desfecho
	// ═══════════════════════════════════════════════════════════════════════════
	if err := s.aplicarResultado(ctx, nota, resultado, retorno); err != nil {
		return nil, err
	}
	s.log.Info().Str("nota", nota.ID).Int64("rps", nota.Numero).Str("status", nota.Status).
		Str("nfse", nota.NumeroNFSe).Msg("RPS processado")
	return nota, nil
}

// Consultar reconcilia a situação da nota junto à prefeitura. Notas com
// desfecho conclusivo devolvem o estado armazenado sem nenhuma chamada de
// rede; uma rejeição reconhecida em qualquer estratégia encerra a cadeia.
func (s *ServicoNFSe) Consultar(ctx context.Context, id string) (*entity.NotaFiscal, error) {
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

	// ═══════════════════════════════════════════════════════════════════════════
	// Estratégia 1: reinterpretar o último retorno armazenado (zero rede)
	// ═══════════════════════════════════════════════════════════════════════════
	if nota.XMLRetorno != "" {
		if r, errParse := nfse.AnalisarRetorno(nota.XMLRetorno); errParse == nil && r.Conclusivo() {
			if err := s.aplicarResultado(ctx, nota, r, nota.XMLRetorno); err != nil {
				return nil, err
			}
			return nota, nil
		}
	}

	emitente, err := s.emitentes.BuscarAtivo(ctx)
	if err != nil {
		return nil, fmt.Errorf("buscar emitente: %w", err)
	}
	if emitente == nil {
		return nil, domain.ErrEmitenteNaoConfigurado
	}
	prestador := nfse.Prestador{CNPJ: emitente.CNPJ, InscricaoMunicipal: emitente.InscricaoMunicipal}

	// ═══════════════════════════════════════════════════════════════════════════
	// Estratégia 2: consulta pela chave do RPS
	// ═══════════════════════════════════════════════════════════════════════════
	pedido, err := nfse.MontarConsultaRPS(prestador, nota.Serie, nota.Numero)
	if err != nil {
		return nil, err
	}
	assinado, err := nfse.AssinarXML(pedido, s.cred)
	if err != nil {
		return nil, err
	}
	retorno, tempoMs, errEnvio := comRetentativa(ctx, func() (string, int64, error) {
		return s.transmissor.ConsultarNFe(ctx, assinado)
	})
	if errEnvio != nil {
		s.registrar(ctx, nota.ID, entity.TransmissaoConsulta, assinado, retorno, tempoMs, false, "", errEnvio.Error())
		return nil, errEnvio
	}
	resultado, err := nfse.AnalisarRetorno(retorno)
	if err != nil {
		s.registrar(ctx, nota.ID, entity.TransmissaoConsulta, assinado, retorno, tempoMs, false, "", err.Error())
		return nil, err
	}
	s.registrar(ctx, nota.ID, entity.TransmissaoConsulta, assinado, retorno, tempoMs, true, resultado.Codigo, resultado.Motivo)
	if resultado.Conclusivo() {
		if err := s.aplicarResultado(ctx, nota, resultado, retorno); err != nil {
			return nil, err
		}
		return nota, nil
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// Estratégia 3: consulta do lote, quando o número é conhecido
	// ═══════════════════════════════════════════════════════════════════════════
	if nota.Lote == "" {
		return nota, nil
	}
	pedido, err = nfse.MontarConsultaLote(emitente.CNPJ, nota.Lote)
	if err != nil {
		return nil, err
	}
	assinado, err = nfse.AssinarXML(pedido, s.cred)
	if err != nil {
		return nil, err
	}
	retorno, tempoMs, errEnvio = comRetentativa(ctx, func() (string, int64, error) {
		return s.transmissor.ConsultarLote(ctx, assinado)
	})
	if errEnvio != nil {
		s.registrar(ctx, nota.ID, entity.TransmissaoConsultaLote, assinado, retorno, tempoMs, false, "", errEnvio.Error())
		return nil, errEnvio
	}
	resultado, err = nfse.AnalisarRetorno(retorno)
	if err != nil {
		s.registrar(ctx, nota.ID, entity.TransmissaoConsultaLote, assinado, retorno, tempoMs, false, "", err.Error())
		return nil, err
	}
	s.registrar(ctx, nota.ID, entity.TransmissaoConsultaLote, assinado, retorno, tempoMs, true, resultado.Codigo, resultado.Motivo)
	if resultado.Conclusivo() {
		if err := s.aplicarResultado(ctx, nota, resultado, retorno); err != nil {
			return nil, err
		}
	}
	return nota, nil
}

// Cancelar envia o pedido de cancelamento de uma NFS-e autorizada. Recusa da
// prefeitura devolve ErroRejeicao e a nota permanece autorizada.
func (s *ServicoNFSe) Cancelar(ctx context.Context, id string) (*entity.NotaFiscal, error) {
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
	if nota.NumeroNFSe == "" {
		return nil, fmt.Errorf("nota %s autorizada sem número de NFS-e: %w", id, domain.ErrConflito)
	}
	emitente, err := s.emitentes.BuscarAtivo(ctx)
	if err != nil {
		return nil, fmt.Errorf("buscar emitente: %w", err)
	}
	if emitente == nil {
		return nil, domain.ErrEmitenteNaoConfigurado
	}

	assinaturaCanc, err := nfse.AssinarCancelamento(emitente.InscricaoMunicipal, nota.NumeroNFSe, s.cred)
	if err != nil {
		return nil, err
	}
	prestador := nfse.Prestador{CNPJ: emitente.CNPJ, InscricaoMunicipal: emitente.InscricaoMunicipal}
	pedido, err := nfse.MontarCancelamento(prestador, nota.NumeroNFSe, assinaturaCanc)
	if err != nil {
		return nil, err
	}
	assinado, err := nfse.AssinarXML(pedido, s.cred)
	if err != nil {
		return nil, err
	}

	retorno, tempoMs, errEnvio := comRetentativa(ctx, func() (string, int64, error) {
		return s.transmissor.Cancelar(ctx, assinado)
	})
	if errEnvio != nil {
		s.registrar(ctx, nota.ID, entity.TransmissaoCancelamento, assinado, retorno, tempoMs, false, "", errEnvio.Error())
		return nil, errEnvio
	}
	resultado, err := nfse.AnalisarRetornoCancelamento(retorno)
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
	s.log.Info().Str("nota", nota.ID).Str("nfse", nota.NumeroNFSe).Msg("NFS-e cancelada")
	return nota, nil
}

// TestarConexao sonda o lotenfe consultando o lote zero, que o serviço
// responde sem efeitos colaterais. Erro nulo significa serviço alcançável.
func (s *ServicoNFSe) TestarConexao(ctx context.Context) error {
	emitente, err := s.emitentes.BuscarAtivo(ctx)
	if err != nil {
		return fmt.Errorf("buscar emitente: %w", err)
	}
	if emitente == nil {
		return domain.ErrEmitenteNaoConfigurado
	}
	pedido, err := nfse.MontarConsultaLote(emitente.CNPJ, "0")
	if err != nil {
		return err
	}
	assinado, err := nfse.AssinarXML(pedido, s.cred)
	if err != nil {
		return err
	}
	retorno, tempoMs, errEnvio := comRetentativa(ctx, func() (string, int64, error) {
		return s.transmissor.ConsultarLote(ctx, assinado)
	})
	if errEnvio != nil {
		s.registrar(ctx, "", entity.TransmissaoStatusServico, assinado, retorno, tempoMs, false, "", errEnvio.Error())
		return errEnvio
	}
	s.registrar(ctx, "", entity.TransmissaoStatusServico, assinado, retorno, tempoMs, true, "", "")
	return nil
}

// ── helpers privados ──────────────────────────────────────────────────────────

func (s *ServicoNFSe) buscar(ctx context.Context, id string) (*entity.NotaFiscal, error) {
	nota, err := s.notas.BuscarPorID(ctx, id)
	if err != nil {
		return nil, err
	}
	if nota == nil {
		return nil, fmt.Errorf("nota %s: %w", id, domain.ErrNaoEncontrada)
	}
	if nota.Tipo != entity.TipoNFSe {
		return nil, fmt.Errorf("nota %s é %s, não NFS-e: %w", id, nota.Tipo, domain.ErrConflito)
	}
	return nota, nil
}

// falhaLocal registra o motivo e mantém a nota em rascunho. O número do RPS
// alocado é perdido: a próxima tentativa emite com número novo.
func (s *ServicoNFSe) falhaLocal(ctx context.Context, nota *entity.NotaFiscal, causa error) error {
	nota.MotivoRetorno = causa.Error()
	nota.UpdatedAt = s.agora()
	if err := s.notas.Atualizar(ctx, nota); err != nil {
		s.log.Error().Err(err).Str("nota", nota.ID).Msg("não foi possível persistir a falha local")
	}
	return causa
}

func (s *ServicoNFSe) aplicarResultado(ctx context.Context, nota *entity.NotaFiscal, r *entity.ResultadoTransmissao, xmlRetorno string) error {
	agora := s.agora()
	nota.CodigoRetorno = r.Codigo
	nota.MotivoRetorno = r.Motivo
	nota.XMLRetorno = xmlRetorno

	switch r.Situacao {
	case entity.SituacaoAutorizada:
		nota.Status = entity.StatusAutorizada
		nota.NumeroNFSe = r.NumeroNFSe
		nota.CodigoVerificacao = r.CodigoVerificacao
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
func (s *ServicoNFSe) registrar(ctx context.Context, notaID, tipo, envio, retorno string, tempoMs int64, sucesso bool, codigo, mensagem string) {
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

func (s *ServicoNFSe) montarDados(e *entity.Emitente, req dto.EmitirNFSeRequest) nfse.DadosNFSe {
	codigoServico := req.Servico.CodigoServico
	if codigoServico == "" {
		codigoServico = e.CodigoServico
	}
	aliquota := req.Servico.AliquotaISS
	if aliquota.IsZero() {
		aliquota = e.AliquotaISS
	}

	return nfse.DadosNFSe{
		RPS: nfse.DadosRPS{
			Serie:            s.cfg.SerieRPS,
			Tipo:             tipoRPSDaConfig(s.cfg.TipoRPS),
			Emissao:          s.agora(),
			RegimeTributacao: e.RegimeTributacao,
			OptanteSimples:   e.OptanteSimples,
		},
		Prestador: nfse.Prestador{
			CNPJ:               e.CNPJ,
			InscricaoMunicipal: e.InscricaoMunicipal,
		},
		Tomador: nfse.Tomador{
			CPFCNPJ:         req.Tomador.CPFCNPJ,
			RazaoSocial:     req.Tomador.RazaoSocial,
			Email:           req.Tomador.Email,
			Endereco:        req.Tomador.Endereco,
			NumeroEndereco:  req.Tomador.Numero,
			Complemento:     req.Tomador.Complemento,
			Bairro:          req.Tomador.Bairro,
			CodigoMunicipio: req.Tomador.CodigoMunicipio,
			UF:              req.Tomador.UF,
			CEP:             req.Tomador.CEP,
		},
		Servico: nfse.Servico{
			CodigoServico: codigoServico,
			Discriminacao: req.Servico.Discriminacao,
			AliquotaISS:   aliquota,
			ValorServicos: req.Servico.Valor,
			ValorDeducoes: req.Servico.ValorDeducoes,
			ISSRetido:     req.Servico.ISSRetido,
		},
	}
}

func tipoRPSDaConfig(tipo int) string {
	switch tipo {
	case 2:
		return nfse.TipoRPSMista
	case 3:
		return nfse.TipoRPSCupom
	default:
		return nfse.TipoRPS
	}
}
