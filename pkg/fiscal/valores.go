package fiscal

import "github.com/shopspring/decimal"

// Formatação numérica exigida pelos validadores da SEFAZ:
// valores monetários com 2 casas, quantidades com 4, valor unitário com até 10
// casas (mínimo 2, sem zeros à direita além das duas primeiras).

// FormatarValor formata um valor monetário: ponto decimal, exatamente 2 casas.
func FormatarValor(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

// FormatarQuantidade formata quantidade comercial/tributável com 4 casas.
func FormatarQuantidade(d decimal.Decimal) string {
	return d.Round(4).StringFixed(4)
}

// FormatarValorUnitario formata vUnCom/vUnTrib: até 10 casas decimais,
// mínimo de 2, zeros à direita removidos quando há mais de 2 casas.
func FormatarValorUnitario(d decimal.Decimal) string {
	v := d.Round(10)
	if v.Equal(v.Round(2)) {
		return v.StringFixed(2)
	}
	return v.String()
}

// FormatarAliquota formata alíquota percentual com 4 casas (ex.: 5.0000).
func FormatarAliquota(d decimal.Decimal) string {
	return d.Round(4).StringFixed(4)
}

// Centavos converte um valor em reais para centavos inteiros (arredondado a 2 casas).
func Centavos(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}
