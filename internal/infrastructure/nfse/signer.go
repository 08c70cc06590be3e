// Assinaturas da NFS-e paulistana. São três:
//
//  1. hash do RPS (campo <Assinatura>): string de largura fixa com os campos
//     do recibo, assinada com RSA-SHA1 e codificada em base64;
//  2. hash de cancelamento (<AssinaturaCancelamento>): inscrição + número;
//  3. XML-DSig enveloped sobre o documento inteiro (Reference URI vazia),
//     com <Signature> como último filho do elemento raiz.

package nfse

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"

	"github.com/gestorfin/fiscal-api/internal/domain"
	"github.com/gestorfin/fiscal-api/internal/infrastructure/certstore"
	"github.com/gestorfin/fiscal-api/pkg/fiscal"
)

const (
	namespaceDSig      = "http://www.w3.org/2000/09/xmldsig#"
	algC14N            = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	transformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
	algSHA1            = "http://www.w3.org/2000/09/xmldsig#sha1"
	algRSASHA1         = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
)

// MontarStringAssinatura monta a string de largura fixa do hash do RPS,
// no layout do manual paulistano:
//
//	inscrição do prestador   8 dígitos, zeros à esquerda
//	série do RPS             5 caracteres, espaços à direita
//	número do RPS           12 dígitos, zeros à esquerda
//	data de emissão          8 dígitos (AAAAMMDD)
//	tributação               1 caractere
//	status                   1 caractere
//	ISS retido               1 caractere (S/N)
//	valor dos serviços      15 dígitos em centavos
//	valor das deduções      15 dígitos em centavos
//	código do serviço        5 dígitos
//	indicador do tomador     1 caractere (1=CPF, 2=CNPJ, 3=sem documento)
//	documento do tomador    14 dígitos, zeros à esquerda
func MontarStringAssinatura(d DadosNFSe) string {
	var sb strings.Builder
	sb.WriteString(padEsquerda(fiscal.SomenteDigitos(d.Prestador.InscricaoMunicipal), 8, '0'))
	sb.WriteString(padDireita(d.RPS.Serie, 5, ' '))
	sb.WriteString(padEsquerda(itoa(d.RPS.Numero), 12, '0'))
	sb.WriteString(d.RPS.Emissao.In(fusoBrasilia).Format("20060102"))
	sb.WriteString(CodigoTributacao(d.RPS.RegimeTributacao, d.RPS.OptanteSimples))
	sb.WriteString(StatusRPSNormal)
	if d.Servico.ISSRetido {
		sb.WriteString("S")
	} else {
		sb.WriteString("N")
	}
	sb.WriteString(padEsquerda(itoa(fiscal.Centavos(d.Servico.ValorServicos)), 15, '0'))
	sb.WriteString(padEsquerda(itoa(fiscal.Centavos(d.Servico.ValorDeducoes)), 15, '0'))
	sb.WriteString(padEsquerda(fiscal.SomenteDigitos(d.Servico.CodigoServico), 5, '0'))

	doc := fiscal.SomenteDigitos(d.Tomador.CPFCNPJ)
	switch {
	case doc == "":
		sb.WriteString("3")
	case len(doc) <= 11:
		sb.WriteString("1")
	default:
		sb.WriteString("2")
	}
	sb.WriteString(padEsquerda(doc, 14, '0'))
	return sb.String()
}

// AssinarRPS devolve o conteúdo do campo <Assinatura> do RPS.
func AssinarRPS(d DadosNFSe, cred *certstore.Credencial) (string, error) {
	return assinarTexto(MontarStringAssinatura(d), cred)
}

// AssinarCancelamento devolve o conteúdo de <AssinaturaCancelamento>:
// inscrição do prestador (8) + número da NFS-e (12), assinados.
func AssinarCancelamento(inscricaoPrestador, numeroNFSe string, cred *certstore.Credencial) (string, error) {
	texto := padEsquerda(fiscal.SomenteDigitos(inscricaoPrestador), 8, '0') +
		padEsquerda(fiscal.SomenteDigitos(numeroNFSe), 12, '0')
	return assinarTexto(texto, cred)
}

func assinarTexto(texto string, cred *certstore.Credencial) (string, error) {
	if cred == nil || cred.Chave == nil {
		return "", fmt.Errorf("nfse: credencial incompleta: %w", domain.ErrAssinatura)
	}
	hash := sha1.Sum([]byte(texto))
	valor, err := rsa.SignPKCS1v15(nil, cred.Chave, crypto.SHA1, hash[:])
	if err != nil {
		return "", fmt.Errorf("nfse: assinar hash do RPS: %v: %w", err, domain.ErrAssinatura)
	}
	return base64.StdEncoding.EncodeToString(valor), nil
}

// AssinarXML aplica o XML-DSig enveloped sobre o documento completo.
// A Reference tem URI vazia (o digest cobre o documento sem a declaração
// XML, que a forma canônica descarta) e o <Signature> entra como último
// filho da raiz.
func AssinarXML(xmlStr string, cred *certstore.Credencial) (string, error) {
	if cred == nil || cred.Chave == nil || cred.Certificado == nil {
		return "", fmt.Errorf("nfse: credencial incompleta: %w", domain.ErrAssinatura)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromString(xmlStr); err != nil || doc.Root() == nil {
		return "", fmt.Errorf("nfse: parsear XML: %w", domain.ErrAssinatura)
	}

	canonico, err := canonicalizar([]byte(xmlStr))
	if err != nil {
		return "", fmt.Errorf("nfse: canonicalizar documento: %v: %w", err, domain.ErrAssinatura)
	}
	digest := sha1.Sum(canonico)

	signedInfo := montarSignedInfo(base64.StdEncoding.EncodeToString(digest[:]))
	canonicoSI, err := canonicalizar([]byte(signedInfo))
	if err != nil {
		return "", fmt.Errorf("nfse: canonicalizar SignedInfo: %v: %w", err, domain.ErrAssinatura)
	}
	hashSI := sha1.Sum(canonicoSI)
	valor, err := rsa.SignPKCS1v15(nil, cred.Chave, crypto.SHA1, hashSI[:])
	if err != nil {
		return "", fmt.Errorf("nfse: assinar SignedInfo: %v: %w", err, domain.ErrAssinatura)
	}

	assinatura := montarAssinatura(signedInfo,
		base64.StdEncoding.EncodeToString(valor),
		base64.StdEncoding.EncodeToString(cred.Certificado.Raw))

	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(assinatura); err != nil {
		return "", fmt.Errorf("nfse: parsear Signature: %v: %w", err, domain.ErrAssinatura)
	}
	doc.Root().AddChild(sigDoc.Root())

	out, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("nfse: serializar documento assinado: %v: %w", err, domain.ErrAssinatura)
	}
	return out, nil
}

// canonicalizar aplica C14N 20010315 (a declaração XML fica de fora da
// forma canônica). O mapa de entidades é limpo para o decoder não expandir
// entidades externas.
func canonicalizar(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

func montarSignedInfo(digestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<SignedInfo xmlns="` + namespaceDSig + `">`)
	sb.WriteString(`<CanonicalizationMethod Algorithm="` + algC14N + `"/>`)
	sb.WriteString(`<SignatureMethod Algorithm="` + algRSASHA1 + `"/>`)
	sb.WriteString(`<Reference URI="">`)
	sb.WriteString(`<Transforms>`)
	sb.WriteString(`<Transform Algorithm="` + transformEnveloped + `"/>`)
	sb.WriteString(`<Transform Algorithm="` + algC14N + `"/>`)
	sb.WriteString(`</Transforms>`)
	sb.WriteString(`<DigestMethod Algorithm="` + algSHA1 + `"/>`)
	sb.WriteString(`<DigestValue>` + digestB64 + `</DigestValue>`)
	sb.WriteString(`</Reference>`)
	sb.WriteString(`</SignedInfo>`)
	return sb.String()
}

func montarAssinatura(signedInfo, valorB64, certB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<Signature xmlns="` + namespaceDSig + `">`)
	sb.WriteString(signedInfo)
	sb.WriteString(`<SignatureValue>` + valorB64 + `</SignatureValue>`)
	sb.WriteString(`<KeyInfo><X509Data><X509Certificate>` + certB64 + `</X509Certificate></X509Data></KeyInfo>`)
	sb.WriteString(`</Signature>`)
	return sb.String()
}

func padEsquerda(s string, n int, c byte) string {
	if len(s) >= n {
		return s
	}
	return strings.Repeat(string(c), n-len(s)) + s
}

func padDireita(s string, n int, c byte) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(string(c), n-len(s))
}
