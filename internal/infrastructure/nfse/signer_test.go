package nfse

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
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestorfin/fiscal-api/internal/domain"
	"github.com/gestorfin/fiscal-api/internal/infrastructure/certstore"
)

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

func TestMontarStringAssinatura(t *testing.T) {
	// Layout de largura fixa: 86 caracteres no total.
	esperada := "12345678" + // inscrição, 8
		"A    " + // série, 5 com espaços à direita
		"000000000042" + // número, 12
		"20250115" + // data AAAAMMDD
		"T" + "N" + "N" + // tributação, status, ISS retido
		"000000000010000" + // serviços em centavos, 15
		"000000000000000" + // deduções em centavos, 15
		"02800" + // código de serviço, 5
		"1" + // indicador: CPF
		"00052998224725" // documento, 14

	s := MontarStringAssinatura(dadosTeste())
	assert.Equal(t, esperada, s)
	assert.Len(t, s, 86)
}

func TestMontarStringAssinatura_Indicadores(t *testing.T) {
	d := dadosTeste()
	d.Tomador.CPFCNPJ = "11.222.333/0001-81"
	assert.Contains(t, MontarStringAssinatura(d), "2"+"11222333000181", "CNPJ usa indicador 2")

	d.Tomador.CPFCNPJ = ""
	assert.Contains(t, MontarStringAssinatura(d), "3"+"00000000000000", "sem documento usa indicador 3")
}

func TestMontarStringAssinatura_ISSRetidoECentavos(t *testing.T) {
	d := dadosTeste()
	d.Servico.ISSRetido = true
	d.Servico.ValorServicos = decimal.RequireFromString("1234.56")
	d.Servico.ValorDeducoes = decimal.RequireFromString("0.99")

	s := MontarStringAssinatura(d)
	assert.Contains(t, s, "S"+"000000000123456"+"000000000000099")
}

func TestAssinarRPS_Verificavel(t *testing.T) {
	cred := credencialTeste(t)
	d := dadosTeste()

	b64, err := AssinarRPS(d, cred)
	require.NoError(t, err)

	valor, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	hash := sha1.Sum([]byte(MontarStringAssinatura(d)))
	assert.NoError(t, rsa.VerifyPKCS1v15(&cred.Chave.PublicKey, crypto.SHA1, hash[:], valor))
}

func TestAssinarCancelamento_Verificavel(t *testing.T) {
	cred := credencialTeste(t)

	b64, err := AssinarCancelamento("12345678", "1234", cred)
	require.NoError(t, err)

	valor, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	hash := sha1.Sum([]byte("12345678" + "000000001234"))
	assert.NoError(t, rsa.VerifyPKCS1v15(&cred.Chave.PublicKey, crypto.SHA1, hash[:], valor))
}

func TestAssinarXML(t *testing.T) {
	cred := credencialTeste(t)
	xml, err := MontarPedidoEnvioLote(dadosTeste(), "hash-rps")
	require.NoError(t, err)

	assinado, err := AssinarXML(xml, cred)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(assinado))

	filhos := doc.Root().ChildElements()
	require.NotEmpty(t, filhos)
	sig := filhos[len(filhos)-1]
	assert.Equal(t, "Signature", sig.Tag, "Signature deve ser o último filho da raiz")

	ref := sig.FindElement(".//Reference")
	require.NotNil(t, ref)
	assert.Equal(t, "", ref.SelectAttrValue("URI", "x"), "Reference cobre o documento inteiro")

	// O digest é o SHA-1 da forma canônica do documento original.
	canonico, err := canonicalizar([]byte(xml))
	require.NoError(t, err)
	esperado := sha1.Sum(canonico)
	assert.Equal(t, base64.StdEncoding.EncodeToString(esperado[:]),
		sig.FindElement(".//DigestValue").Text())

	// A assinatura verifica contra o SignedInfo canônico.
	siDoc := etree.NewDocument()
	siDoc.SetRoot(sig.FindElement(".//SignedInfo").Copy())
	siBruto, err := siDoc.WriteToBytes()
	require.NoError(t, err)
	siCanonico, err := canonicalizar(siBruto)
	require.NoError(t, err)
	hash := sha1.Sum(siCanonico)

	valor, err := base64.StdEncoding.DecodeString(sig.FindElement(".//SignatureValue").Text())
	require.NoError(t, err)
	assert.NoError(t, rsa.VerifyPKCS1v15(&cred.Chave.PublicKey, crypto.SHA1, hash[:], valor))
}

func TestAssinarXML_Erros(t *testing.T) {
	cred := credencialTeste(t)

	_, err := AssinarXML("não é XML <<", cred)
	assert.ErrorIs(t, err, domain.ErrAssinatura)

	_, err = AssinarXML("<Pedido/>", nil)
	assert.ErrorIs(t, err, domain.ErrAssinatura)

	_, err = AssinarRPS(dadosTeste(), nil)
	assert.ErrorIs(t, err, domain.ErrAssinatura)
}
