// Cliente SOAP 1.2 dos Web Services da SEFAZ SP (NF-e v4.00).
// Autenticação por TLS mútuo com o certificado A1.

package nfe

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/gestorfin/fiscal-api/internal/domain"
	"github.com/gestorfin/fiscal-api/internal/infrastructure/certstore"
	"github.com/gestorfin/fiscal-api/pkg/logger"
)

// Serviços (nomes usados no namespace do wsdl e na SOAPAction).
const (
	ServicoAutorizacao       = "NFeAutorizacao4"
	ServicoConsultaProtocolo = "NFeConsultaProtocolo4"
	ServicoRecepcaoEvento    = "NFeRecepcaoEvento4"
	ServicoStatusServico     = "NFeStatusServico4"
)

var urlsProducaoSP = map[string]string{
	ServicoAutorizacao:       "https://nfe.fazenda.sp.gov.br/ws/nfeautorizacao4.asmx",
	ServicoConsultaProtocolo: "https://nfe.fazenda.sp.gov.br/ws/nfeconsultaprotocolo4.asmx",
	ServicoRecepcaoEvento:    "https://nfe.fazenda.sp.gov.br/ws/nferecepcaoevento4.asmx",
	ServicoStatusServico:     "https://nfe.fazenda.sp.gov.br/ws/nfestatusservico4.asmx",
}

var urlsHomologacaoSP = map[string]string{
	ServicoAutorizacao:       "https://homologacao.nfe.fazenda.sp.gov.br/ws/nfeautorizacao4.asmx",
	ServicoConsultaProtocolo: "https://homologacao.nfe.fazenda.sp.gov.br/ws/nfeconsultaprotocolo4.asmx",
	ServicoRecepcaoEvento:    "https://homologacao.nfe.fazenda.sp.gov.br/ws/nferecepcaoevento4.asmx",
	ServicoStatusServico:     "https://homologacao.nfe.fazenda.sp.gov.br/ws/nfestatusservico4.asmx",
}

var acoesSOAP = map[string]string{
	ServicoAutorizacao:       "http://www.portalfiscal.inf.br/nfe/wsdl/NFeAutorizacao4/nfeAutorizacaoLote",
	ServicoConsultaProtocolo: "http://www.portalfiscal.inf.br/nfe/wsdl/NFeConsultaProtocolo4/nfeConsultaNF",
	ServicoRecepcaoEvento:    "http://www.portalfiscal.inf.br/nfe/wsdl/NFeRecepcaoEvento4/nfeRecepcaoEvento",
	ServicoStatusServico:     "http://www.portalfiscal.inf.br/nfe/wsdl/NFeStatusServico4/nfeStatusServicoNF",
}

// ClienteSOAP envia mensagens aos Web Services da SEFAZ SP.
type ClienteSOAP struct {
	http *http.Client
	urls map[string]string
	log  *logger.Logger
}

// NovoClienteSOAP configura o transporte mTLS com a credencial A1.
// ambiente: 1 = produção, 2 = homologação.
func NovoClienteSOAP(cred *certstore.Credencial, ambiente int, log *logger.Logger) *ClienteSOAP {
	urls := urlsHomologacaoSP
	if ambiente == 1 {
		urls = urlsProducaoSP
	}
	transporte := &http.Transport{
		TLSClientConfig: &tls.Config{
			Certificates: []tls.Certificate{cred.TLS},
			MinVersion:   tls.VersionTLS12,
		},
	}
	return &ClienteSOAP{
		http: &http.Client{Transport: transporte, Timeout: 60 * time.Second},
		urls: urls,
		log:  log,
	}
}

// EnviarLote transmite o enviNFe (autorização síncrona).
func (c *ClienteSOAP) EnviarLote(ctx context.Context, xmlDados string) (string, int64, error) {
	return c.enviar(ctx, ServicoAutorizacao, xmlDados)
}

// ConsultarProtocolo transmite o consSitNFe.
func (c *ClienteSOAP) ConsultarProtocolo(ctx context.Context, xmlDados string) (string, int64, error) {
	return c.enviar(ctx, ServicoConsultaProtocolo, xmlDados)
}

// EnviarEvento transmite o envEvento (cancelamento).
func (c *ClienteSOAP) EnviarEvento(ctx context.Context, xmlDados string) (string, int64, error) {
	return c.enviar(ctx, ServicoRecepcaoEvento, xmlDados)
}

// ConsultarStatus transmite o consStatServ.
func (c *ClienteSOAP) ConsultarStatus(ctx context.Context, xmlDados string) (string, int64, error) {
	return c.enviar(ctx, ServicoStatusServico, xmlDados)
}

// enviar monta o envelope SOAP 1.2, faz o POST e devolve o XML interno do
// nfeResultMsg junto com a latência em milissegundos.
func (c *ClienteSOAP) enviar(ctx context.Context, servico, xmlDados string) (string, int64, error) {
	inicio := time.Now()
	envelope := montarEnvelopeSOAP(servico, xmlDados)

	url := c.urls[servico]
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(envelope))
	if err != nil {
		return "", 0, fmt.Errorf("nfe: montar requisição: %v: %w", err, domain.ErrTransporte)
	}
	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")
	req.Header.Set("SOAPAction", acoesSOAP[servico])

	resp, err := c.http.Do(req)
	tempoMs := time.Since(inicio).Milliseconds()
	if err != nil {
		return "", tempoMs, fmt.Errorf("nfe: %s: %v: %w", servico, err, domain.ErrTransporte)
	}
	defer resp.Body.Close()

	corpo, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", tempoMs, fmt.Errorf("nfe: ler resposta de %s: %v: %w", servico, err, domain.ErrTransporte)
	}

	c.log.Debug().
		Str("servico", servico).
		Int("http_status", resp.StatusCode).
		Int64("tempo_ms", tempoMs).
		Msg("resposta da SEFAZ")

	// Resposta da autoridade fora de 2xx não é falha de transporte: o payload
	// chegou e foi recusado, reenviar o mesmo envelope não muda o desfecho.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return string(corpo), tempoMs, fmt.Errorf("nfe: %s devolveu HTTP %d: %w", servico, resp.StatusCode, domain.ErrRejeitada)
	}
	return extrairResultMsg(string(corpo)), tempoMs, nil
}

func montarEnvelopeSOAP(servico, xmlDados string) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	sb.WriteString(`<soap12:Envelope xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:soap12="http://www.w3.org/2003/05/soap-envelope">`)
	sb.WriteString(`<soap12:Body>`)
	sb.WriteString(`<nfeDadosMsg xmlns="http://www.portalfiscal.inf.br/nfe/wsdl/` + servico + `">`)
	sb.WriteString(xmlDados)
	sb.WriteString(`</nfeDadosMsg>`)
	sb.WriteString(`</soap12:Body>`)
	sb.WriteString(`</soap12:Envelope>`)
	return sb.String()
}

// extrairResultMsg desembrulha o conteúdo de nfeResultMsg. Se a resposta não
// tiver o embrulho esperado, devolve o corpo como veio.
func extrairResultMsg(corpo string) string {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(corpo); err != nil {
		return corpo
	}
	result := doc.FindElement("//nfeResultMsg")
	if result == nil {
		return corpo
	}
	filhos := result.ChildElements()
	if len(filhos) == 0 {
		return corpo
	}
	interno := etree.NewDocument()
	interno.SetRoot(filhos[0].Copy())
	s, err := interno.WriteToString()
	if err != nil {
		return corpo
	}
	return s
}
