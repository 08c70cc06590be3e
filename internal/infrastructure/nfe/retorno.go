// Interpretação dos retornos da SEFAZ. O cStat que decide o desfecho da nota
// é o de protNFe/infProt; o cStat do lote só diz se o lote foi processado.

package nfe

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/gestorfin/fiscal-api/internal/domain"
	"github.com/gestorfin/fiscal-api/internal/domain/entity"
)

// Códigos de situação relevantes.
const (
	CStatAutorizada       = "100"
	CStatCancelada        = "101"
	CStatLoteProcessado   = "104"
	CStatServicoOperante  = "107"
	CStatEventoRegistrado = "135"
	CStatEventoVinculado  = "155"
)

// StatusServico resposta do consStatServ.
type StatusServico struct {
	Codigo     string
	Motivo     string
	EmOperacao bool
	TempoMedio string // tMed em segundos, quando informado
}

// AnalisarRetornoAutorizacao interpreta o retEnviNFe do envio síncrono.
// Autorizada exige cStat 100 dentro de infProt; lote aceito sem protocolo
// ainda é Processando.
func AnalisarRetornoAutorizacao(xmlRetorno string) (*entity.ResultadoTransmissao, error) {
	doc, err := parsear(xmlRetorno)
	if err != nil {
		return nil, err
	}
	if r := resultadoDoProtocolo(doc); r != nil {
		return r, nil
	}

	cStat := textoElemento(doc.Root(), "cStat")
	xMotivo := textoElemento(doc.Root(), "xMotivo")
	switch cStat {
	case "103", "105": // lote recebido / em processamento
		return &entity.ResultadoTransmissao{
			Situacao: entity.SituacaoProcessando,
			Codigo:   cStat,
			Motivo:   xMotivo,
			Lote:     textoElemento(doc.Root(), "nRec"),
		}, nil
	case CStatLoteProcessado:
		// Lote processado mas sem protNFe no corpo: desfecho indisponível.
		return &entity.ResultadoTransmissao{Situacao: entity.SituacaoProcessando, Codigo: cStat, Motivo: xMotivo}, nil
	default:
		return &entity.ResultadoTransmissao{Situacao: entity.SituacaoRejeitada, Codigo: cStat, Motivo: xMotivo}, nil
	}
}

// AnalisarRetornoConsulta interpreta o retConsSitNFe da consulta por chave.
func AnalisarRetornoConsulta(xmlRetorno string) (*entity.ResultadoTransmissao, error) {
	doc, err := parsear(xmlRetorno)
	if err != nil {
		return nil, err
	}
	if r := resultadoDoProtocolo(doc); r != nil {
		return r, nil
	}

	cStat := textoElemento(doc.Root(), "cStat")
	xMotivo := textoElemento(doc.Root(), "xMotivo")
	switch cStat {
	case CStatCancelada, "151", "155":
		return &entity.ResultadoTransmissao{Situacao: entity.SituacaoCancelada, Codigo: cStat, Motivo: xMotivo}, nil
	case "217", "108", "109":
		// 217 = não consta na base (envio ainda não refletido); 108/109 = serviço pausado.
		return &entity.ResultadoTransmissao{Situacao: entity.SituacaoProcessando, Codigo: cStat, Motivo: xMotivo}, nil
	default:
		return &entity.ResultadoTransmissao{Situacao: entity.SituacaoRejeitada, Codigo: cStat, Motivo: xMotivo}, nil
	}
}

// AnalisarRetornoEvento interpreta o retEnvEvento do cancelamento.
// 135 (registrado) e 155 (registrado fora do prazo) homologam o evento.
func AnalisarRetornoEvento(xmlRetorno string) (*entity.ResultadoTransmissao, error) {
	doc, err := parsear(xmlRetorno)
	if err != nil {
		return nil, err
	}
	inf := doc.FindElement("//retEvento//infEvento")
	if inf == nil {
		inf = doc.FindElement("//infEvento")
	}
	if inf == nil {
		cStat := textoElemento(doc.Root(), "cStat")
		return &entity.ResultadoTransmissao{
			Situacao: entity.SituacaoRejeitada,
			Codigo:   cStat,
			Motivo:   textoElemento(doc.Root(), "xMotivo"),
		}, nil
	}
	cStat := textoElemento(inf, "cStat")
	xMotivo := textoElemento(inf, "xMotivo")
	if cStat == CStatEventoRegistrado || cStat == CStatEventoVinculado {
		return &entity.ResultadoTransmissao{
			Situacao:  entity.SituacaoCancelada,
			Codigo:    cStat,
			Motivo:    xMotivo,
			Protocolo: textoElemento(inf, "nProt"),
		}, nil
	}
	return &entity.ResultadoTransmissao{Situacao: entity.SituacaoRejeitada, Codigo: cStat, Motivo: xMotivo}, nil
}

// AnalisarRetornoStatus interpreta o retConsStatServ.
func AnalisarRetornoStatus(xmlRetorno string) (*StatusServico, error) {
	doc, err := parsear(xmlRetorno)
	if err != nil {
		return nil, err
	}
	cStat := textoElemento(doc.Root(), "cStat")
	return &StatusServico{
		Codigo:     cStat,
		Motivo:     textoElemento(doc.Root(), "xMotivo"),
		EmOperacao: cStat == CStatServicoOperante,
		TempoMedio: textoElemento(doc.Root(), "tMed"),
	}, nil
}

// resultadoDoProtocolo extrai o desfecho de protNFe/infProt, quando presente.
func resultadoDoProtocolo(doc *etree.Document) *entity.ResultadoTransmissao {
	inf := doc.FindElement("//protNFe//infProt")
	if inf == nil {
		return nil
	}
	cStat := textoElemento(inf, "cStat")
	xMotivo := textoElemento(inf, "xMotivo")
	switch cStat {
	case CStatAutorizada:
		return &entity.ResultadoTransmissao{
			Situacao:  entity.SituacaoAutorizada,
			Codigo:    cStat,
			Motivo:    xMotivo,
			Protocolo: textoElemento(inf, "nProt"),
		}
	case CStatCancelada, CStatEventoRegistrado, "151", "155":
		return &entity.ResultadoTransmissao{Situacao: entity.SituacaoCancelada, Codigo: cStat, Motivo: xMotivo}
	default:
		return &entity.ResultadoTransmissao{Situacao: entity.SituacaoRejeitada, Codigo: cStat, Motivo: xMotivo}
	}
}

func parsear(xmlRetorno string) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(xmlRetorno); err != nil || doc.Root() == nil {
		return nil, fmt.Errorf("nfe: retorno da SEFAZ ilegível: %w", domain.ErrTransporte)
	}
	return doc, nil
}

// textoElemento procura o primeiro descendente com a tag e devolve seu texto.
func textoElemento(raiz *etree.Element, tag string) string {
	if raiz == nil {
		return ""
	}
	if el := raiz.FindElement(".//" + tag); el != nil {
		return el.Text()
	}
	return ""
}
