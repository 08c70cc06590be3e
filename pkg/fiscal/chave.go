// Package fiscal: cálculo da chave de acesso da NF-e (44 dígitos) conforme o
// Manual de Orientação do Contribuinte (MOC) v7.0.
// Layout: cUF(2) + AAMM(4) + CNPJ(14) + mod(2) + serie(3) + nNF(9) + tpEmis(1) + cNF(8) + cDV(1).

package fiscal

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

// ChaveAcessoParams contém os dados para montar a chave de acesso.
type ChaveAcessoParams struct {
	CodigoUF       int       // 35 = SP
	Emissao        time.Time // Data de emissão (define o AAMM)
	CNPJ           string    // CNPJ do emitente, apenas dígitos
	Modelo         int       // 55 = NF-e
	Serie          int
	Numero         int64
	TipoEmissao    int    // 1 = Normal
	CodigoNumerico string // cNF, 8 dígitos; vazio = derivado de CNPJ+série+número
}

// MontarChaveAcesso monta a chave de acesso completa (44 dígitos) incluindo o
// dígito verificador. Com CodigoNumerico vazio o cNF é derivado de forma
// determinística: duas montagens com os mesmos parâmetros produzem a mesma chave.
func MontarChaveAcesso(p ChaveAcessoParams) (string, error) {
	cnpj := SomenteDigitos(p.CNPJ)
	if len(cnpj) != 14 {
		return "", fmt.Errorf("fiscal: CNPJ do emitente deve ter 14 dígitos")
	}
	if p.CodigoUF < 11 || p.CodigoUF > 53 {
		return "", fmt.Errorf("fiscal: código de UF %d fora da faixa IBGE", p.CodigoUF)
	}
	if p.Numero <= 0 || p.Numero > 999999999 {
		return "", fmt.Errorf("fiscal: número da nota fora da faixa 1..999999999")
	}
	if p.Serie < 0 || p.Serie > 999 {
		return "", fmt.Errorf("fiscal: série fora da faixa 0..999")
	}
	if p.Emissao.IsZero() {
		return "", fmt.Errorf("fiscal: data de emissão é obrigatória")
	}

	cNF := p.CodigoNumerico
	if cNF == "" {
		cNF = CodigoNumerico(cnpj, p.Serie, p.Numero)
	}
	if len(cNF) != 8 || SomenteDigitos(cNF) != cNF {
		return "", fmt.Errorf("fiscal: cNF deve ter 8 dígitos")
	}

	aamm := p.Emissao.Format("0601")
	sem := fmt.Sprintf("%02d%s%s%02d%03d%09d%d%s",
		p.CodigoUF, aamm, cnpj, p.Modelo, p.Serie, p.Numero, p.TipoEmissao, cNF)
	dv, err := DigitoVerificador(sem)
	if err != nil {
		return "", err
	}
	return sem + fmt.Sprintf("%d", dv), nil
}

// DigitoVerificador calcula o cDV por módulo 11 sobre os 43 primeiros dígitos.
// Pesos 2..9 aplicados da direita para a esquerda; resto < 2 resulta em dígito 0.
func DigitoVerificador(chave43 string) (int, error) {
	if len(chave43) != 43 {
		return 0, fmt.Errorf("fiscal: esperados 43 dígitos para o cDV, recebidos %d", len(chave43))
	}
	soma := 0
	peso := 2
	for i := len(chave43) - 1; i >= 0; i-- {
		d := chave43[i]
		if d < '0' || d > '9' {
			return 0, fmt.Errorf("fiscal: chave contém caractere não numérico")
		}
		soma += int(d-'0') * peso
		peso++
		if peso > 9 {
			peso = 2
		}
	}
	resto := soma % 11
	if resto < 2 {
		return 0, nil
	}
	return 11 - resto, nil
}

// CodigoNumerico deriva o cNF (8 dígitos) de CNPJ, série e número via SHA-256.
// O cNF não pode coincidir com o nNF zero-preenchido (regra de validação da SEFAZ);
// nesse caso soma-se 1 módulo 10^8.
func CodigoNumerico(cnpj string, serie int, numero int64) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%03d|%09d", SomenteDigitos(cnpj), serie, numero)))
	v := binary.BigEndian.Uint64(h[:8]) % 100000000
	if fmt.Sprintf("%08d", v) == fmt.Sprintf("%08d", numero) {
		v = (v + 1) % 100000000
	}
	return fmt.Sprintf("%08d", v)
}

// ValidarChaveAcesso verifica comprimento, dígitos e cDV de uma chave de acesso.
func ValidarChaveAcesso(chave string) error {
	if len(chave) != 44 {
		return fmt.Errorf("fiscal: chave de acesso deve ter 44 dígitos, tem %d", len(chave))
	}
	dv, err := DigitoVerificador(chave[:43])
	if err != nil {
		return err
	}
	if chave[43] != byte('0'+dv) {
		return fmt.Errorf("fiscal: dígito verificador da chave inválido")
	}
	return nil
}
