// Interpretação dos retornos do lotenfe. O serviço responde de formas
// variadas: o XML útil pode vir embrulhado num elemento RetornoXML (escapado
// ou em CDATA), a nota autorizada aparece como NumeroNFe ou NumeroNota e o
// processamento assíncrono devolve só o NumeroLote.

package nfse

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/gestorfin/fiscal-api/internal/domain"
	"github.com/gestorfin/fiscal-api/internal/domain/entity"
)

// AnalisarRetorno interpreta a resposta de envio ou consulta.
func AnalisarRetorno(xmlRetorno string) (*entity.ResultadoTransmissao, error) {
	doc, err := parsear(xmlRetorno)
	if err != nil {
		return nil, err
	}
	doc = desembrulhar(doc)

	if r := resultadoDeErros(doc); r != nil {
		// "RPS não encontrado" e afins chegam dentro de blocos Erro, mas
		// significam que o lote ainda não refletiu: inconclusivo, não rejeição.
		if indicaProcessamento(r.Motivo) {
			return &entity.ResultadoTransmissao{
				Situacao: entity.SituacaoProcessando,
				Codigo:   r.Codigo,
				Motivo:   r.Motivo,
			}, nil
		}
		return r, nil
	}

	numero := primeiroTexto(doc, "NumeroNFe", "NumeroNota")
	if numero != "" {
		return &entity.ResultadoTransmissao{
			Situacao:          entity.SituacaoAutorizada,
			NumeroNFSe:        numero,
			CodigoVerificacao: primeiroTexto(doc, "CodigoVerificacao", "CodigoVerificacaoNFe"),
			Motivo:            "NFS-e emitida",
		}, nil
	}

	if lote := textoElemento(doc.Root(), "NumeroLote"); lote != "" {
		return &entity.ResultadoTransmissao{
			Situacao: entity.SituacaoProcessando,
			Motivo:   "lote recebido, aguardando processamento",
			Lote:     lote,
		}, nil
	}

	// Sem erro, sem nota e sem lote: respostas em texto livre que indicam
	// processamento em andamento ou consulta antes do lote refletir.
	if indicaProcessamento(xmlRetorno) {
		return &entity.ResultadoTransmissao{
			Situacao: entity.SituacaoProcessando,
			Motivo:   "documento ainda não disponível na prefeitura",
		}, nil
	}
	return &entity.ResultadoTransmissao{
		Situacao: entity.SituacaoRejeitada,
		Motivo:   "retorno da prefeitura sem desfecho reconhecível",
	}, nil
}

// AnalisarRetornoCancelamento interpreta a resposta do PedidoCancelamentoNFe.
func AnalisarRetornoCancelamento(xmlRetorno string) (*entity.ResultadoTransmissao, error) {
	doc, err := parsear(xmlRetorno)
	if err != nil {
		return nil, err
	}
	doc = desembrulhar(doc)

	if r := resultadoDeErros(doc); r != nil {
		return r, nil
	}
	if strings.EqualFold(textoElemento(doc.Root(), "Sucesso"), "false") {
		return &entity.ResultadoTransmissao{
			Situacao: entity.SituacaoRejeitada,
			Motivo:   "prefeitura recusou o cancelamento",
		}, nil
	}
	return &entity.ResultadoTransmissao{
		Situacao: entity.SituacaoCancelada,
		Motivo:   "cancelamento homologado",
	}, nil
}

// desembrulhar tenta reparsear o conteúdo de RetornoXML, quando presente.
// O serviço devolve o XML útil escapado ou em CDATA dentro do envelope SOAP.
func desembrulhar(doc *etree.Document) *etree.Document {
	el := doc.FindElement("//RetornoXML")
	if el == nil {
		return doc
	}
	texto := strings.TrimSpace(el.Text())
	if texto == "" {
		return doc
	}
	interno := etree.NewDocument()
	if err := interno.ReadFromString(texto); err != nil || interno.Root() == nil {
		return doc
	}
	return interno
}

// marcasProcessando sinais em texto livre de que o documento ainda não está
// disponível. O serviço usa tanto mensagens soltas quanto blocos Erro para isso.
var marcasProcessando = []string{"nao encontrad", "não encontrad", "processamento"}

func indicaProcessamento(texto string) bool {
	corpo := strings.ToLower(texto)
	for _, marca := range marcasProcessando {
		if strings.Contains(corpo, marca) {
			return true
		}
	}
	return false
}

// resultadoDeErros agrega os blocos <Erro> quando houver.
func resultadoDeErros(doc *etree.Document) *entity.ResultadoTransmissao {
	erros := doc.FindElements("//Erro")
	if len(erros) == 0 {
		return nil
	}
	codigo := ""
	motivos := make([]string, 0, len(erros))
	for _, e := range erros {
		c := textoElemento(e, "Codigo")
		d := textoElemento(e, "Descricao")
		if codigo == "" {
			codigo = c
		}
		if d != "" {
			motivos = append(motivos, d)
		}
	}
	return &entity.ResultadoTransmissao{
		Situacao: entity.SituacaoRejeitada,
		Codigo:   codigo,
		Motivo:   strings.Join(motivos, "; "),
	}
}

func primeiroTexto(doc *etree.Document, tags ...string) string {
	for _, t := range tags {
		if v := textoElemento(doc.Root(), t); v != "" {
			return v
		}
	}
	return ""
}

func parsear(xmlRetorno string) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(xmlRetorno); err != nil || doc.Root() == nil {
		return nil, fmt.Errorf("nfse: retorno da prefeitura ilegível: %w", domain.ErrTransporte)
	}
	return doc, nil
}

func textoElemento(raiz *etree.Element, tag string) string {
	if raiz == nil {
		return ""
	}
	if el := raiz.FindElement(".//" + tag); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}
