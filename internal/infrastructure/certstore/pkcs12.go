// Package certstore: extração de credenciais de certificados A1 (PKCS#12 / .pfx)
// para assinatura digital e mTLS com SEFAZ e Prefeitura de SP.
//
// Certificados ICP-Brasil costumam usar cifras legadas (RC2/3DES) no contêiner;
// golang.org/x/crypto/pkcs12 as suporta sem depender do OpenSSL do sistema.

package certstore

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/pkcs12"

	"github.com/gestorfin/fiscal-api/internal/domain"
)

// Credencial reúne o material extraído do contêiner PKCS#12.
type Credencial struct {
	Certificado *x509.Certificate
	Chave       *rsa.PrivateKey
	TLS         tls.Certificate // pronta para tls.Config{Certificates: ...}
}

// Carregar decodifica um contêiner PKCS#12 e devolve a credencial.
// A senha nunca é incluída em mensagens de erro.
func Carregar(p12 []byte, senha string) (*Credencial, error) {
	if len(p12) == 0 {
		return nil, fmt.Errorf("certstore: contêiner vazio: %w", domain.ErrCertificadoFormato)
	}

	chave, cert, err := pkcs12.Decode(p12, senha)
	if err != nil {
		if strings.Contains(err.Error(), "decryption password incorrect") {
			return nil, fmt.Errorf("certstore: %w", domain.ErrCertificadoSenha)
		}
		return nil, fmt.Errorf("certstore: decodificar PKCS#12: %v: %w", err, domain.ErrCertificadoFormato)
	}
	if cert == nil {
		return nil, fmt.Errorf("certstore: nenhum certificado no contêiner: %w", domain.ErrCertificadoConteudo)
	}
	rsaChave, ok := chave.(*rsa.PrivateKey)
	if !ok || rsaChave == nil {
		return nil, fmt.Errorf("certstore: chave privada ausente ou não é RSA: %w", domain.ErrCertificadoConteudo)
	}

	return &Credencial{
		Certificado: cert,
		Chave:       rsaChave,
		TLS: tls.Certificate{
			Certificate: [][]byte{cert.Raw},
			PrivateKey:  rsaChave,
			Leaf:        cert,
		},
	}, nil
}

// CarregarBase64 aceita o contêiner em base64, com ou sem prefixo data-URI
// (formato comum quando o certificado vem de upload web).
func CarregarBase64(b64, senha string) (*Credencial, error) {
	limpo := b64
	if i := strings.Index(limpo, ","); i >= 0 {
		limpo = limpo[i+1:]
	}
	limpo = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, limpo)

	raw, err := base64.StdEncoding.DecodeString(limpo)
	if err != nil {
		return nil, fmt.Errorf("certstore: base64 inválido: %w", domain.ErrCertificadoFormato)
	}
	return Carregar(raw, senha)
}

// Validade devolve o fim da vigência do certificado.
func (c *Credencial) Validade() time.Time {
	return c.Certificado.NotAfter
}

// Vencido indica se o certificado já expirou no instante informado.
func (c *Credencial) Vencido(agora time.Time) bool {
	return agora.After(c.Certificado.NotAfter)
}
