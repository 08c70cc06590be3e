package fiscal

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var removerAcentos = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizarTexto remove acentos e colapsa espaços consecutivos. Validadores
// legados da SEFAZ rejeitam alguns caracteres fora do ASCII em campos de texto.
func NormalizarTexto(s string) string {
	out, _, err := transform.String(removerAcentos, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(out), " ")
}
