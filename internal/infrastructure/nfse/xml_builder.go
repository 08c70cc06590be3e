// Montagem dos pedidos XML do Web Service lotenfe da Prefeitura de SP.
// O schema usa namespace no elemento raiz e xmlns="" nos blocos internos;
// datas em YYYY-MM-DD e valores com ponto e duas casas.

package nfse

import (
	"strconv"
	"strings"
	"time"

	"github.com/gestorfin/fiscal-api/internal/domain"
	"github.com/gestorfin/fiscal-api/pkg/fiscal"
)

var fusoBrasilia = time.FixedZone("-03:00", -3*3600)

const declaracaoXML = `<?xml version="1.0" encoding="UTF-8"?>`

// MontarPedidoEnvioLote monta o PedidoEnvioLoteRPS com um único RPS.
// A assinatura é o hash RSA-SHA1 dos campos do RPS já em base64 (ver AssinarRPS).
func MontarPedidoEnvioLote(d DadosNFSe, assinatura string) (string, error) {
	if err := validarDados(d); err != nil {
		return "", err
	}
	data := d.RPS.Emissao.In(fusoBrasilia).Format("2006-01-02")

	var sb strings.Builder
	sb.WriteString(declaracaoXML)
	sb.WriteString(`<PedidoEnvioLoteRPS xmlns="` + NamespaceNFSe + `" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">`)
	sb.WriteString(`<Cabecalho xmlns="" Versao="1">`)
	sb.WriteString(`<CPFCNPJRemetente><CNPJ>` + fiscal.SomenteDigitos(d.Prestador.CNPJ) + `</CNPJ></CPFCNPJRemetente>`)
	sb.WriteString(tag("transacao", "true"))
	sb.WriteString(tag("dtInicio", data))
	sb.WriteString(tag("dtFim", data))
	sb.WriteString(tag("QtdRPS", "1"))
	sb.WriteString(tag("ValorTotalServicos", fiscal.FormatarValor(d.Servico.ValorServicos)))
	sb.WriteString(tag("ValorTotalDeducoes", fiscal.FormatarValor(d.Servico.ValorDeducoes)))
	sb.WriteString(`</Cabecalho>`)
	escreverRPS(&sb, d, assinatura, data)
	sb.WriteString(`</PedidoEnvioLoteRPS>`)
	return sb.String(), nil
}

func escreverRPS(sb *strings.Builder, d DadosNFSe, assinatura, data string) {
	t := d.Tomador
	s := d.Servico

	sb.WriteString(`<RPS xmlns="">`)
	sb.WriteString(tag("Assinatura", assinatura))
	sb.WriteString(`<ChaveRPS>`)
	sb.WriteString(tag("InscricaoPrestador", fiscal.SomenteDigitos(d.Prestador.InscricaoMunicipal)))
	sb.WriteString(tag("SerieRPS", d.RPS.Serie))
	sb.WriteString(tag("NumeroRPS", itoa(d.RPS.Numero)))
	sb.WriteString(`</ChaveRPS>`)
	sb.WriteString(tag("TipoRPS", d.RPS.Tipo))
	sb.WriteString(tag("DataEmissao", data))
	sb.WriteString(tag("StatusRPS", StatusRPSNormal))
	sb.WriteString(tag("TributacaoRPS", CodigoTributacao(d.RPS.RegimeTributacao, d.RPS.OptanteSimples)))
	sb.WriteString(tag("ValorServicos", fiscal.FormatarValor(s.ValorServicos)))
	sb.WriteString(tag("ValorDeducoes", fiscal.FormatarValor(s.ValorDeducoes)))
	sb.WriteString(tag("ValorPIS", fiscal.FormatarValor(s.ValorPIS)))
	sb.WriteString(tag("ValorCOFINS", fiscal.FormatarValor(s.ValorCOFINS)))
	sb.WriteString(tag("ValorINSS", fiscal.FormatarValor(s.ValorINSS)))
	sb.WriteString(tag("ValorIR", fiscal.FormatarValor(s.ValorIR)))
	sb.WriteString(tag("ValorCSLL", fiscal.FormatarValor(s.ValorCSLL)))
	sb.WriteString(tag("CodigoServico", fiscal.SomenteDigitos(s.CodigoServico)))
	// Alíquota vai em percentual (0.05 vira 5.0000).
	sb.WriteString(tag("AliquotaServicos", fiscal.FormatarAliquota(s.AliquotaISS.Shift(2))))
	sb.WriteString(tag("ISSRetido", boolStr(s.ISSRetido)))

	doc := fiscal.SomenteDigitos(t.CPFCNPJ)
	if doc != "" {
		if len(doc) <= 11 {
			sb.WriteString(`<CPFCNPJTomador><CPF>` + doc + `</CPF></CPFCNPJTomador>`)
		} else {
			sb.WriteString(`<CPFCNPJTomador><CNPJ>` + doc + `</CNPJ></CPFCNPJTomador>`)
		}
	}
	tagOpcional(sb, "InscricaoMunicipalTomador", fiscal.SomenteDigitos(t.InscricaoMunicipal))
	tagOpcional(sb, "RazaoSocialTomador", escapeXML(t.RazaoSocial))
	tagOpcional(sb, "EnderecoTomador", escapeXML(t.Endereco))
	tagOpcional(sb, "NumeroEnderecoTomador", escapeXML(t.NumeroEndereco))
	tagOpcional(sb, "ComplementoEnderecoTomador", escapeXML(t.Complemento))
	tagOpcional(sb, "BairroTomador", escapeXML(t.Bairro))
	tagOpcional(sb, "CidadeTomador", t.CodigoMunicipio)
	tagOpcional(sb, "UFTomador", t.UF)
	tagOpcional(sb, "CEPTomador", fiscal.SomenteDigitos(t.CEP))
	tagOpcional(sb, "EmailTomador", escapeXML(t.Email))
	sb.WriteString(tag("Discriminacao", escapeXML(s.Discriminacao)))
	sb.WriteString(`</RPS>`)
}

// MontarConsultaRPS monta o PedidoConsultaNFe com a chave do RPS.
func MontarConsultaRPS(p Prestador, serie string, numero int64) (string, error) {
	if err := validarPrestador(p); err != nil {
		return "", err
	}
	if numero <= 0 {
		return "", domain.NovoErroValidacao("rps.numero", "deve ser positivo")
	}
	var sb strings.Builder
	sb.WriteString(declaracaoXML)
	sb.WriteString(`<PedidoConsultaNFe xmlns="` + NamespaceNFSe + `">`)
	sb.WriteString(`<Cabecalho xmlns="" Versao="1">`)
	sb.WriteString(`<CPFCNPJRemetente><CNPJ>` + fiscal.SomenteDigitos(p.CNPJ) + `</CNPJ></CPFCNPJRemetente>`)
	sb.WriteString(`</Cabecalho>`)
	sb.WriteString(`<Detalhe xmlns=""><ChaveRPS>`)
	sb.WriteString(tag("InscricaoPrestador", fiscal.SomenteDigitos(p.InscricaoMunicipal)))
	sb.WriteString(tag("SerieRPS", serie))
	sb.WriteString(tag("NumeroRPS", itoa(numero)))
	sb.WriteString(`</ChaveRPS></Detalhe>`)
	sb.WriteString(`</PedidoConsultaNFe>`)
	return sb.String(), nil
}

// MontarConsultaLote monta o PedidoConsultaLote. Lote "0" serve como teste
// de conectividade com o serviço.
func MontarConsultaLote(cnpj, lote string) (string, error) {
	cnpj = fiscal.SomenteDigitos(cnpj)
	if !fiscal.ValidarCNPJ(cnpj) {
		return "", domain.NovoErroValidacao("prestador.cnpj", "CNPJ inválido")
	}
	if fiscal.SomenteDigitos(lote) == "" {
		return "", domain.NovoErroValidacao("lote", "número do lote obrigatório")
	}
	var sb strings.Builder
	sb.WriteString(declaracaoXML)
	sb.WriteString(`<PedidoConsultaLote xmlns="` + NamespaceNFSe + `">`)
	sb.WriteString(`<Cabecalho xmlns="" Versao="1">`)
	sb.WriteString(`<CPFCNPJRemetente><CNPJ>` + cnpj + `</CNPJ></CPFCNPJRemetente>`)
	sb.WriteString(tag("NumeroLote", fiscal.SomenteDigitos(lote)))
	sb.WriteString(`</Cabecalho>`)
	sb.WriteString(`</PedidoConsultaLote>`)
	return sb.String(), nil
}

// MontarCancelamento monta o PedidoCancelamentoNFe. A assinatura é o hash
// de cancelamento em base64 (ver AssinarCancelamento).
func MontarCancelamento(p Prestador, numeroNFSe, assinatura string) (string, error) {
	if err := validarPrestador(p); err != nil {
		return "", err
	}
	if fiscal.SomenteDigitos(numeroNFSe) == "" {
		return "", domain.NovoErroValidacao("numeroNfse", "número da NFS-e obrigatório")
	}
	var sb strings.Builder
	sb.WriteString(declaracaoXML)
	sb.WriteString(`<PedidoCancelamentoNFe xmlns="` + NamespaceNFSe + `">`)
	sb.WriteString(`<Cabecalho xmlns="" Versao="1">`)
	sb.WriteString(`<CPFCNPJRemetente><CNPJ>` + fiscal.SomenteDigitos(p.CNPJ) + `</CNPJ></CPFCNPJRemetente>`)
	sb.WriteString(tag("transacao", "true"))
	sb.WriteString(`</Cabecalho>`)
	sb.WriteString(`<Detalhe xmlns=""><ChaveNFe>`)
	sb.WriteString(tag("InscricaoPrestador", fiscal.SomenteDigitos(p.InscricaoMunicipal)))
	sb.WriteString(tag("NumeroNFe", fiscal.SomenteDigitos(numeroNFSe)))
	sb.WriteString(`</ChaveNFe>`)
	sb.WriteString(tag("AssinaturaCancelamento", assinatura))
	sb.WriteString(`</Detalhe>`)
	sb.WriteString(`</PedidoCancelamentoNFe>`)
	return sb.String(), nil
}

// Validar checa os dados do RPS sem montar o XML. Útil para recusar o
// pedido antes de consumir um número da série.
func Validar(d DadosNFSe) error {
	return validarDados(d)
}

func validarDados(d DadosNFSe) error {
	if err := validarPrestador(d.Prestador); err != nil {
		return err
	}
	if d.RPS.Numero <= 0 {
		return domain.NovoErroValidacao("rps.numero", "deve ser positivo")
	}
	if d.RPS.Serie == "" {
		return domain.NovoErroValidacao("rps.serie", "série obrigatória")
	}
	switch d.RPS.Tipo {
	case TipoRPS, TipoRPSMista, TipoRPSCupom:
	default:
		return domain.NovoErroValidacao("rps.tipo", "tipo de RPS desconhecido")
	}
	if doc := fiscal.SomenteDigitos(d.Tomador.CPFCNPJ); doc != "" {
		if len(doc) <= 11 && !fiscal.ValidarCPF(doc) {
			return domain.NovoErroValidacao("tomador.cpfCnpj", "CPF inválido")
		}
		if len(doc) > 11 && !fiscal.ValidarCNPJ(doc) {
			return domain.NovoErroValidacao("tomador.cpfCnpj", "CNPJ inválido")
		}
	}
	if !d.Servico.ValorServicos.IsPositive() {
		return domain.NovoErroValidacao("servico.valorServicos", "deve ser positivo")
	}
	if fiscal.SomenteDigitos(d.Servico.CodigoServico) == "" {
		return domain.NovoErroValidacao("servico.codigoServico", "código de serviço obrigatório")
	}
	if strings.TrimSpace(d.Servico.Discriminacao) == "" {
		return domain.NovoErroValidacao("servico.discriminacao", "discriminação obrigatória")
	}
	if d.Servico.AliquotaISS.IsNegative() {
		return domain.NovoErroValidacao("servico.aliquotaIss", "alíquota não pode ser negativa")
	}
	return nil
}

func validarPrestador(p Prestador) error {
	if !fiscal.ValidarCNPJ(p.CNPJ) {
		return domain.NovoErroValidacao("prestador.cnpj", "CNPJ inválido")
	}
	if fiscal.SomenteDigitos(p.InscricaoMunicipal) == "" {
		return domain.NovoErroValidacao("prestador.inscricaoMunicipal", "inscrição municipal obrigatória")
	}
	return nil
}

func tag(nome, valor string) string {
	return "<" + nome + ">" + valor + "</" + nome + ">"
}

func tagOpcional(sb *strings.Builder, nome, valor string) {
	if valor != "" {
		sb.WriteString(tag(nome, valor))
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

var escapadorXML = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escapeXML(s string) string {
	return escapadorXML.Replace(s)
}
