// Cliente SOAP 1.2 do Web Service lotenfe da Prefeitura de SP.
// O XML do pedido viaja em CDATA dentro de MensagemXML e a autenticação é
// por TLS mútuo com o certificado A1. Homologação usa o subdomínio nfeh.

package nfse

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gestorfin/fiscal-api/internal/domain"
	"github.com/gestorfin/fiscal-api/internal/infrastructure/certstore"
	"github.com/gestorfin/fiscal-api/pkg/logger"
)

// Métodos do serviço (nome do elemento Request e sufixo da SOAPAction).
const (
	MetodoEnvioLote      = "EnvioLoteRPS"
	MetodoTesteEnvioLote = "TesteEnvioLoteRPS"
	MetodoConsultaNFe    = "ConsultaNFe"
	MetodoConsultaLote   = "ConsultaLote"
	MetodoCancelamento   = "CancelamentoNFe"
)

const (
	urlProducao    = "https://nfe.prefeitura.sp.gov.br/ws/lotenfe.asmx"
	urlHomologacao = "https://nfeh.prefeitura.sp.gov.br/ws/lotenfe.asmx"
)

var acoesSOAP = map[string]string{
	MetodoEnvioLote:      "http://www.prefeitura.sp.gov.br/nfe/ws/envioLoteRPS",
	MetodoTesteEnvioLote: "http://www.prefeitura.sp.gov.br/nfe/ws/testeEnvioLoteRPS",
	MetodoConsultaNFe:    "http://www.prefeitura.sp.gov.br/nfe/ws/consultaNFe",
	MetodoConsultaLote:   "http://www.prefeitura.sp.gov.br/nfe/ws/consultaLote",
	MetodoCancelamento:   "http://www.prefeitura.sp.gov.br/nfe/ws/cancelamentoNFe",
}

// ClienteSOAP envia pedidos ao lotenfe.
type ClienteSOAP struct {
	http *http.Client
	url  string
	log  *logger.Logger
}

// NovoClienteSOAP configura o transporte mTLS com a credencial A1.
// ambiente: 1 = produção, 2 = homologação.
func NovoClienteSOAP(cred *certstore.Credencial, ambiente int, log *logger.Logger) *ClienteSOAP {
	url := urlHomologacao
	if ambiente == 1 {
		url = urlProducao
	}
	transporte := &http.Transport{
		TLSClientConfig: &tls.Config{
			Certificates: []tls.Certificate{cred.TLS},
			MinVersion:   tls.VersionTLS12,
		},
	}
	return &ClienteSOAP{
		http: &http.Client{Transport: transporte, Timeout: 30 * time.Second},
		url:  url,
		log:  log,
	}
}

// EnviarLote transmite o PedidoEnvioLoteRPS.
func (c *ClienteSOAP) EnviarLote(ctx context.Context, xmlPedido string) (string, int64, error) {
	return c.enviar(ctx, MetodoEnvioLote, xmlPedido)
}

// TestarEnvioLote transmite o mesmo pedido pelo método de teste, que valida
// o lote sem gerar notas. Usado no ambiente de homologação.
func (c *ClienteSOAP) TestarEnvioLote(ctx context.Context, xmlPedido string) (string, int64, error) {
	return c.enviar(ctx, MetodoTesteEnvioLote, xmlPedido)
}

// ConsultarNFe transmite o PedidoConsultaNFe (consulta por chave de RPS).
func (c *ClienteSOAP) ConsultarNFe(ctx context.Context, xmlPedido string) (string, int64, error) {
	return c.enviar(ctx, MetodoConsultaNFe, xmlPedido)
}

// ConsultarLote transmite o PedidoConsultaLote.
func (c *ClienteSOAP) ConsultarLote(ctx context.Context, xmlPedido string) (string, int64, error) {
	return c.enviar(ctx, MetodoConsultaLote, xmlPedido)
}

// Cancelar transmite o PedidoCancelamentoNFe.
func (c *ClienteSOAP) Cancelar(ctx context.Context, xmlPedido string) (string, int64, error) {
	return c.enviar(ctx, MetodoCancelamento, xmlPedido)
}

func (c *ClienteSOAP) enviar(ctx context.Context, metodo, xmlPedido string) (string, int64, error) {
	inicio := time.Now()
	envelope := montarEnvelopeSOAP(metodo, xmlPedido)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(envelope))
	if err != nil {
		return "", 0, fmt.Errorf("nfse: montar requisição: %v: %w", err, domain.ErrTransporte)
	}
	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")
	req.Header.Set("SOAPAction", acoesSOAP[metodo])

	resp, err := c.http.Do(req)
	tempoMs := time.Since(inicio).Milliseconds()
	if err != nil {
		return "", tempoMs, fmt.Errorf("nfse: %s: %v: %w", metodo, err, domain.ErrTransporte)
	}
	defer resp.Body.Close()

	corpo, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", tempoMs, fmt.Errorf("nfse: ler resposta de %s: %v: %w", metodo, err, domain.ErrTransporte)
	}

	c.log.Debug().
		Str("metodo", metodo).
		Int("http_status", resp.StatusCode).
		Int64("tempo_ms", tempoMs).
		Msg("resposta da prefeitura")

	// Resposta da autoridade fora de 2xx não é falha de transporte: o payload
	// chegou e foi recusado, reenviar o mesmo envelope não muda o desfecho.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return string(corpo), tempoMs, fmt.Errorf("nfse: %s devolveu HTTP %d: %w", metodo, resp.StatusCode, domain.ErrRejeitada)
	}
	return string(corpo), tempoMs, nil
}

func montarEnvelopeSOAP(metodo, xmlPedido string) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	sb.WriteString(`<soap12:Envelope xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:soap12="http://www.w3.org/2003/05/soap-envelope">`)
	sb.WriteString(`<soap12:Body>`)
	sb.WriteString(`<` + metodo + `Request xmlns="` + NamespaceNFSe + `">`)
	sb.WriteString(`<VersaoSchema>1</VersaoSchema>`)
	sb.WriteString(`<MensagemXML><![CDATA[` + xmlPedido + `]]></MensagemXML>`)
	sb.WriteString(`</` + metodo + `Request>`)
	sb.WriteString(`</soap12:Body>`)
	sb.WriteString(`</soap12:Envelope>`)
	return sb.String()
}
