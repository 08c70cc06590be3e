package nfe

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestorfin/fiscal-api/internal/domain"
	"github.com/gestorfin/fiscal-api/internal/infrastructure/certstore"
)

// credencialTeste gera uma credencial RSA com certificado autoassinado,
// suficiente para exercitar assinatura e verificação sem um A1 real.
func credencialTeste(t *testing.T) *certstore.Credencial {
	t.Helper()
	chave, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "EMPRESA TESTE LTDA:11222333000181"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &chave.PublicKey, chave)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &certstore.Credencial{
		Certificado: cert,
		Chave:       chave,
		TLS:         tls.Certificate{Certificate: [][]byte{der}, PrivateKey: chave, Leaf: cert},
	}
}

func TestAssinar_EstruturaDaAssinatura(t *testing.T) {
	cred := credencialTeste(t)
	gerada, err := MontarNFe(dadosTeste())
	require.NoError(t, err)

	assinado, err := Assinar(gerada.XML, cred)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(assinado))

	sig := doc.FindElement("//Signature")
	require.NotNil(t, sig, "Signature deve existir")
	assert.Equal(t, "NFe", sig.Parent().Tag, "Signature deve ser filho de NFe")

	// A Signature vem depois do infNFe.
	filhos := doc.Root().ChildElements()
	require.Len(t, filhos, 2)
	assert.Equal(t, "infNFe", filhos[0].Tag)
	assert.Equal(t, "Signature", filhos[1].Tag)

	ref := sig.FindElement(".//Reference")
	require.NotNil(t, ref)
	assert.Equal(t, "#NFe"+gerada.ChaveAcesso, ref.SelectAttrValue("URI", ""))

	transforms := sig.FindElements(".//Transform")
	require.Len(t, transforms, 2)
	assert.Equal(t, transformEnveloped, transforms[0].SelectAttrValue("Algorithm", ""))
	assert.Equal(t, algC14N, transforms[1].SelectAttrValue("Algorithm", ""))

	assert.NotNil(t, sig.FindElement(".//X509Certificate"))
}

func TestAssinar_DigestEAssinaturaVerificaveis(t *testing.T) {
	cred := credencialTeste(t)
	gerada, err := MontarNFe(dadosTeste())
	require.NoError(t, err)

	assinado, err := Assinar(gerada.XML, cred)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(assinado))

	// 1) DigestValue deve bater com o SHA-1 do infNFe canonicalizado.
	inf := doc.FindElement("//infNFe")
	require.NotNil(t, inf)
	copia := inf.Copy()
	if copia.SelectAttr("xmlns") == nil {
		copia.CreateAttr("xmlns", NamespaceNFe)
	}
	sub := etree.NewDocument()
	sub.SetRoot(copia)
	bruto, err := sub.WriteToBytes()
	require.NoError(t, err)
	canonico, err := canonicalizar(bruto)
	require.NoError(t, err)
	esperado := sha1.Sum(canonico)

	digestB64 := doc.FindElement("//DigestValue").Text()
	assert.Equal(t, base64.StdEncoding.EncodeToString(esperado[:]), digestB64)

	// 2) SignatureValue deve verificar com a chave pública do certificado.
	signedInfo := doc.FindElement("//SignedInfo")
	require.NotNil(t, signedInfo)
	siDoc := etree.NewDocument()
	siCopia := signedInfo.Copy()
	if siCopia.SelectAttr("xmlns") == nil {
		siCopia.CreateAttr("xmlns", NamespaceDSig)
	}
	siDoc.SetRoot(siCopia)
	siBruto, err := siDoc.WriteToBytes()
	require.NoError(t, err)
	siCanonico, err := canonicalizar(siBruto)
	require.NoError(t, err)
	hash := sha1.Sum(siCanonico)

	valorB64 := doc.FindElement("//SignatureValue").Text()
	valor, err := base64.StdEncoding.DecodeString(valorB64)
	require.NoError(t, err)
	assert.NoError(t, rsa.VerifyPKCS1v15(&cred.Chave.PublicKey, crypto.SHA1, hash[:], valor),
		"a assinatura deve verificar contra o SignedInfo canônico")
}

func TestAssinar_Deterministica(t *testing.T) {
	cred := credencialTeste(t)
	gerada, err := MontarNFe(dadosTeste())
	require.NoError(t, err)

	a, err := Assinar(gerada.XML, cred)
	require.NoError(t, err)
	b, err := Assinar(gerada.XML, cred)
	require.NoError(t, err)
	assert.Equal(t, a, b, "RSA PKCS#1 v1.5 é determinístico: mesmos bytes, mesma assinatura")
}

func TestAssinar_Erros(t *testing.T) {
	cred := credencialTeste(t)

	_, err := Assinar("<NFe><outro/></NFe>", cred)
	assert.ErrorIs(t, err, domain.ErrAssinatura, "sem infNFe")

	_, err = Assinar("isto não é XML <<", cred)
	assert.ErrorIs(t, err, domain.ErrAssinatura)

	_, err = Assinar("<NFe><infNFe><ide/></infNFe></NFe>", cred)
	assert.ErrorIs(t, err, domain.ErrAssinatura, "infNFe sem Id")

	_, err = Assinar("<NFe><infNFe Id=\"NFe1\"/></NFe>", nil)
	assert.ErrorIs(t, err, domain.ErrAssinatura, "credencial ausente")
}

func TestAssinarEvento(t *testing.T) {
	cred := credencialTeste(t)
	gerada, err := MontarNFe(dadosTeste())
	require.NoError(t, err)

	xmlEvento, err := MontarEventoCancelamento(EventoCancelamento{
		ChaveAcesso:   gerada.ChaveAcesso,
		CNPJ:          "11222333000181",
		Ambiente:      2,
		Protocolo:     "135250000000001",
		Justificativa: "Erro de digitação nos itens da nota",
	})
	require.NoError(t, err)

	assinado, err := AssinarEvento(xmlEvento, cred)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(assinado))
	sig := doc.FindElement("//Signature")
	require.NotNil(t, sig)
	assert.Equal(t, "evento", sig.Parent().Tag, "Signature deve ficar dentro de evento")

	ref := doc.FindElement("//Reference")
	require.NotNil(t, ref)
	assert.Contains(t, ref.SelectAttrValue("URI", ""), "#ID110111", "Reference aponta o infEvento")
}
