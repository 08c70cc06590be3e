// Assinatura digital XML-DSig (enveloped) da NF-e e dos eventos.
// Reference por Id sobre infNFe/infEvento, transforms enveloped + C14N,
// digest SHA-1 e assinatura RSA-SHA1, conforme o padrão de assinatura da SEFAZ.

package nfe

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
)

// Algoritmos do XML-DSig exigidos pelo validador da SEFAZ.
const (
	NamespaceDSig      = "http://www.w3.org/2000/09/xmldsig#"
	algC14N            = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	transformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
	algSHA1            = "http://www.w3.org/2000/09/xmldsig#sha1"
	algRSASHA1         = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
)

// Assinar assina a NF-e: Reference sobre infNFe, <Signature> como último
// filho de <NFe>. A assinatura RSA PKCS#1 v1.5 é determinística.
func Assinar(xmlNFe string, cred *certstore.Credencial) (string, error) {
	return assinarDocumento(xmlNFe, "infNFe", "NFe", cred)
}

// AssinarEvento assina o envEvento: Reference sobre infEvento,
// <Signature> como último filho de <evento>.
func AssinarEvento(xmlEnvEvento string, cred *certstore.Credencial) (string, error) {
	return assinarDocumento(xmlEnvEvento, "infEvento", "evento", cred)
}

func assinarDocumento(xmlStr, elementoRef, elementoPai string, cred *certstore.Credencial) (string, error) {
	if cred == nil || cred.Chave == nil || cred.Certificado == nil {
		return "", fmt.Errorf("nfe: credencial incompleta: %w", domain.ErrAssinatura)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromString(xmlStr); err != nil {
		return "", fmt.Errorf("nfe: parsear XML: %v: %w", err, domain.ErrAssinatura)
	}
	ref := doc.FindElement("//" + elementoRef)
	if ref == nil {
		return "", fmt.Errorf("nfe: elemento %s não encontrado: %w", elementoRef, domain.ErrAssinatura)
	}
	id := ref.SelectAttrValue("Id", "")
	if id == "" {
		return "", fmt.Errorf("nfe: elemento %s sem atributo Id: %w", elementoRef, domain.ErrAssinatura)
	}

	// 1) Digest do elemento referenciado, canonicalizado com o namespace
	//    declarado (o validador recompõe o subtree do mesmo jeito).
	copia := ref.Copy()
	if copia.SelectAttr("xmlns") == nil {
		copia.CreateAttr("xmlns", NamespaceNFe)
	}
	sub := etree.NewDocument()
	sub.SetRoot(copia)
	bruto, err := sub.WriteToBytes()
	if err != nil {
		return "", fmt.Errorf("nfe: serializar %s: %v: %w", elementoRef, err, domain.ErrAssinatura)
	}
	canonico, err := canonicalizar(bruto)
	if err != nil {
		return "", fmt.Errorf("nfe: canonicalizar %s: %v: %w", elementoRef, err, domain.ErrAssinatura)
	}
	digest := sha1.Sum(canonico)
	digestB64 := base64.StdEncoding.EncodeToString(digest[:])

	// 2) SignedInfo canônico assinado com RSA-SHA1.
	signedInfo := montarSignedInfo(id, digestB64)
	canonicoSI, err := canonicalizar([]byte(signedInfo))
	if err != nil {
		return "", fmt.Errorf("nfe: canonicalizar SignedInfo: %v: %w", err, domain.ErrAssinatura)
	}
	hashSI := sha1.Sum(canonicoSI)
	valorAssinatura, err := rsa.SignPKCS1v15(nil, cred.Chave, crypto.SHA1, hashSI[:])
	if err != nil {
		return "", fmt.Errorf("nfe: assinar SignedInfo: %v: %w", err, domain.ErrAssinatura)
	}

	// 3) Montar <Signature> e injetar como último filho do elemento pai.
	assinatura := montarAssinatura(signedInfo,
		base64.StdEncoding.EncodeToString(valorAssinatura),
		base64.StdEncoding.EncodeToString(cred.Certificado.Raw))

	pai := doc.FindElement("//" + elementoPai)
	if pai == nil {
		return "", fmt.Errorf("nfe: elemento %s não encontrado: %w", elementoPai, domain.ErrAssinatura)
	}
	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(assinatura); err != nil {
		return "", fmt.Errorf("nfe: parsear Signature: %v: %w", err, domain.ErrAssinatura)
	}
	pai.AddChild(sigDoc.Root())

	out, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("nfe: serializar documento assinado: %v: %w", err, domain.ErrAssinatura)
	}
	return out, nil
}

// canonicalizar aplica C14N 20010315. O mapa de entidades é limpo para o
// decoder não expandir entidades externas.
func canonicalizar(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

// montarSignedInfo monta o SignedInfo com o namespace declarado no próprio
// elemento, de modo que a forma canônica independa do contexto do documento.
func montarSignedInfo(id, digestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<SignedInfo xmlns="` + NamespaceDSig + `">`)
	sb.WriteString(`<CanonicalizationMethod Algorithm="` + algC14N + `"/>`)
	sb.WriteString(`<SignatureMethod Algorithm="` + algRSASHA1 + `"/>`)
	sb.WriteString(`<Reference URI="#` + id + `">`)
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
	sb.WriteString(`<Signature xmlns="` + NamespaceDSig + `">`)
	sb.WriteString(signedInfo)
	sb.WriteString(`<SignatureValue>` + valorB64 + `</SignatureValue>`)
	sb.WriteString(`<KeyInfo><X509Data><X509Certificate>` + certB64 + `</X509Certificate></X509Data></KeyInfo>`)
	sb.WriteString(`</Signature>`)
	return sb.String()
}
