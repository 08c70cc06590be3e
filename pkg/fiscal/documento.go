package fiscal

import "strings"

// SomenteDigitos remove tudo que não for dígito 0-9.
func SomenteDigitos(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidarCNPJ verifica os dois dígitos verificadores do CNPJ (módulo 11).
func ValidarCNPJ(cnpj string) bool {
	d := SomenteDigitos(cnpj)
	if len(d) != 14 || todosIguais(d) {
		return false
	}
	pesos1 := []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	pesos2 := []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	if digitoModulo11(d[:12], pesos1) != int(d[12]-'0') {
		return false
	}
	return digitoModulo11(d[:13], pesos2) == int(d[13]-'0')
}

// ValidarCPF verifica os dois dígitos verificadores do CPF (módulo 11).
func ValidarCPF(cpf string) bool {
	d := SomenteDigitos(cpf)
	if len(d) != 11 || todosIguais(d) {
		return false
	}
	pesos1 := []int{10, 9, 8, 7, 6, 5, 4, 3, 2}
	pesos2 := []int{11, 10, 9, 8, 7, 6, 5, 4, 3, 2}
	if digitoModulo11(d[:9], pesos1) != int(d[9]-'0') {
		return false
	}
	return digitoModulo11(d[:10], pesos2) == int(d[10]-'0')
}

// digitoModulo11 aplica os pesos posição a posição; resto < 2 resulta em dígito 0.
func digitoModulo11(digitos string, pesos []int) int {
	soma := 0
	for i := 0; i < len(digitos); i++ {
		soma += int(digitos[i]-'0') * pesos[i]
	}
	resto := soma % 11
	if resto < 2 {
		return 0
	}
	return 11 - resto
}

func todosIguais(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}
