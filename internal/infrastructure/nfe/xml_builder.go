package nfe

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gestorfin/fiscal-api/internal/domain"
	"github.com/gestorfin/fiscal-api/pkg/fiscal"
)

// Horário civil de referência da SEFAZ SP.
var fusoBrasilia = time.FixedZone("-03:00", -3*60*60)

// Carga tributária média estimada (IBPT) para o vTotTrib.
var aliquotaTributosAproximados = decimal.RequireFromString("0.3145")

const versaoAplicativo = "GestorFinanceiro 1.0"

// MontarNFe monta o XML da NF-e (infNFe) sem assinatura, na ordem exata de
// elementos do schema 4.00. A chave de acesso é determinística: os mesmos
// dados produzem o mesmo XML e a mesma chave.
func MontarNFe(d DadosNFe) (*NFeGerada, error) {
	if err := validarDados(&d); err != nil {
		return nil, err
	}

	emissao := d.Emissao.In(fusoBrasilia)
	dhEmi := emissao.Format("2006-01-02T15:04:05-07:00")
	dhSaiEnt := emissao.Add(time.Minute).Format("2006-01-02T15:04:05-07:00")

	cnpjEmit := fiscal.SomenteDigitos(d.Emitente.CNPJ)
	chave, err := fiscal.MontarChaveAcesso(fiscal.ChaveAcessoParams{
		CodigoUF:       d.CodigoUF,
		Emissao:        emissao,
		CNPJ:           cnpjEmit,
		Modelo:         55,
		Serie:          d.Serie,
		Numero:         d.Numero,
		TipoEmissao:    1,
		CodigoNumerico: d.CodigoNumerico,
	})
	if err != nil {
		return nil, err
	}
	// cUF(2)+AAMM(4)+CNPJ(14)+mod(2)+serie(3)+nNF(9) = 34; tpEmis em [34].
	cNF := chave[35:43]
	cDV := chave[43:]

	// Totais: a SEFAZ valida que o vProd do total é a soma dos vProd por item,
	// cada um já arredondado a 2 casas.
	vProd := decimal.Zero
	for _, item := range d.Itens {
		vProd = vProd.Add(item.ValorTotal.Round(2))
	}
	vNF := vProd // Simples Nacional, sem outros impostos destacados
	vTotTrib := vProd.Mul(aliquotaTributosAproximados)

	var sb strings.Builder
	sb.WriteString(`<NFe xmlns="` + NamespaceNFe + `">`)
	sb.WriteString(`<infNFe Id="NFe` + chave + `" versao="` + VersaoLayout + `">`)

	// ide
	sb.WriteString(`<ide>`)
	tag(&sb, "cUF", fmt.Sprintf("%d", d.CodigoUF))
	tag(&sb, "cNF", cNF)
	tag(&sb, "natOp", texto(d.NaturezaOperacao))
	tag(&sb, "mod", "55")
	tag(&sb, "serie", fmt.Sprintf("%d", d.Serie))
	tag(&sb, "nNF", fmt.Sprintf("%d", d.Numero))
	tag(&sb, "dhEmi", dhEmi)
	tag(&sb, "dhSaiEnt", dhSaiEnt)
	tag(&sb, "tpNF", "1")    // saída
	tag(&sb, "idDest", "1")  // operação interna
	tag(&sb, "cMunFG", d.Emitente.Endereco.CodigoMunicipio)
	tag(&sb, "tpImp", "1")
	tag(&sb, "tpEmis", "1")
	tag(&sb, "cDV", cDV)
	tag(&sb, "tpAmb", fmt.Sprintf("%d", d.Ambiente))
	tag(&sb, "finNFe", "1")
	tag(&sb, "indFinal", "1")
	tag(&sb, "indPres", "2") // não presencial, internet
	tag(&sb, "indIntermed", "0")
	tag(&sb, "procEmi", "0")
	tag(&sb, "verProc", versaoAplicativo)
	sb.WriteString(`</ide>`)

	// emit
	sb.WriteString(`<emit>`)
	tag(&sb, "CNPJ", cnpjEmit)
	tag(&sb, "xNome", texto(d.Emitente.RazaoSocial))
	if d.Emitente.NomeFantasia != "" {
		tag(&sb, "xFant", texto(d.Emitente.NomeFantasia))
	}
	escreverEndereco(&sb, "enderEmit", d.Emitente.Endereco, true)
	tag(&sb, "IE", fiscal.SomenteDigitos(d.Emitente.InscricaoEstadual))
	tag(&sb, "CRT", fmt.Sprintf("%d", d.Emitente.CRT))
	sb.WriteString(`</emit>`)

	// dest
	docDest := fiscal.SomenteDigitos(d.Destinatario.CPFCNPJ)
	sb.WriteString(`<dest>`)
	if len(docDest) == 14 {
		tag(&sb, "CNPJ", docDest)
	} else {
		tag(&sb, "CPF", docDest)
	}
	tag(&sb, "xNome", texto(d.Destinatario.RazaoSocial))
	if d.Destinatario.Endereco != nil {
		escreverEndereco(&sb, "enderDest", *d.Destinatario.Endereco, false)
	}
	tag(&sb, "indIEDest", fmt.Sprintf("%d", d.Destinatario.IndicadorIE))
	if d.Destinatario.Email != "" {
		tag(&sb, "email", escapeXML(d.Destinatario.Email))
	}
	sb.WriteString(`</dest>`)

	// det
	for _, item := range d.Itens {
		escreverItem(&sb, item)
	}

	// total (ICMSTot com os 23 campos em ordem fixa)
	sb.WriteString(`<total><ICMSTot>`)
	for _, campo := range []string{"vBC", "vICMS", "vICMSDeson", "vFCPUFDest", "vICMSUFDest", "vICMSUFRemet", "vFCP", "vBCST", "vST", "vFCPST", "vFCPSTRet"} {
		tag(&sb, campo, "0.00")
	}
	tag(&sb, "vProd", fiscal.FormatarValor(vProd))
	for _, campo := range []string{"vFrete", "vSeg", "vDesc", "vII", "vIPI", "vIPIDevol", "vPIS", "vCOFINS", "vOutro"} {
		tag(&sb, campo, "0.00")
	}
	tag(&sb, "vNF", fiscal.FormatarValor(vNF))
	tag(&sb, "vTotTrib", fiscal.FormatarValor(vTotTrib))
	sb.WriteString(`</ICMSTot></total>`)

	// transp
	sb.WriteString(`<transp><modFrete>9</modFrete></transp>`)

	// pag
	sb.WriteString(`<pag><detPag><indPag>0</indPag><tPag>99</tPag>`)
	tag(&sb, "vPag", fiscal.FormatarValor(vNF))
	sb.WriteString(`</detPag></pag>`)

	// infAdic
	if d.InformacoesAdicionais != "" {
		sb.WriteString(`<infAdic>`)
		tag(&sb, "infCpl", texto(d.InformacoesAdicionais))
		sb.WriteString(`</infAdic>`)
	}

	sb.WriteString(`</infNFe>`)
	sb.WriteString(`</NFe>`)

	return &NFeGerada{
		XML:               sb.String(),
		ChaveAcesso:       chave,
		CodigoNumerico:    cNF,
		DigitoVerificador: cDV,
		ValorTotal:        vNF.Round(2),
	}, nil
}

func escreverEndereco(sb *strings.Builder, elemento string, e Endereco, comPais bool) {
	sb.WriteString(`<` + elemento + `>`)
	tag(sb, "xLgr", texto(e.Logradouro))
	tag(sb, "nro", texto(e.Numero))
	if e.Complemento != "" {
		tag(sb, "xCpl", texto(e.Complemento))
	}
	tag(sb, "xBairro", texto(e.Bairro))
	tag(sb, "cMun", e.CodigoMunicipio)
	tag(sb, "xMun", texto(e.Municipio))
	tag(sb, "UF", e.UF)
	tag(sb, "CEP", fiscal.SomenteDigitos(e.CEP))
	if comPais {
		tag(sb, "cPais", "1058")
		tag(sb, "xPais", "BRASIL")
	}
	sb.WriteString(`</` + elemento + `>`)
}

// escreverItem escreve det/prod/imposto com a tributação fixa do Simples
// Nacional: ICMSSN102 (CSOSN 102), IPI não tributado (CST 53) e PIS/COFINS
// outras operações (CST 99).
func escreverItem(sb *strings.Builder, item Item) {
	ean := item.EAN
	if ean == "" {
		ean = "SEM GTIN"
	}
	ncm := fiscal.SomenteDigitos(item.NCM)
	for len(ncm) < 8 {
		ncm += "0"
	}
	vProdItem := item.ValorTotal.Round(2)
	vTotTribItem := vProdItem.Mul(aliquotaTributosAproximados)

	sb.WriteString(fmt.Sprintf(`<det nItem="%d">`, item.Numero))
	sb.WriteString(`<prod>`)
	tag(sb, "cProd", texto(item.Codigo))
	tag(sb, "cEAN", ean)
	tag(sb, "xProd", texto(item.Descricao))
	tag(sb, "NCM", ncm)
	tag(sb, "CFOP", item.CFOP)
	tag(sb, "uCom", texto(item.Unidade))
	tag(sb, "qCom", fiscal.FormatarQuantidade(item.Quantidade))
	tag(sb, "vUnCom", fiscal.FormatarValorUnitario(item.ValorUnitario))
	tag(sb, "vProd", fiscal.FormatarValor(vProdItem))
	tag(sb, "cEANTrib", ean)
	tag(sb, "uTrib", texto(item.Unidade))
	tag(sb, "qTrib", fiscal.FormatarQuantidade(item.Quantidade))
	tag(sb, "vUnTrib", fiscal.FormatarValorUnitario(item.ValorUnitario))
	tag(sb, "indTot", "1")
	sb.WriteString(`</prod>`)
	sb.WriteString(`<imposto>`)
	tag(sb, "vTotTrib", fiscal.FormatarValor(vTotTribItem))
	sb.WriteString(`<ICMS><ICMSSN102><orig>0</orig><CSOSN>102</CSOSN></ICMSSN102></ICMS>`)
	sb.WriteString(`<IPI><cEnq>999</cEnq><IPINT><CST>53</CST></IPINT></IPI>`)
	sb.WriteString(`<PIS><PISNT><CST>99</CST></PISNT></PIS>`)
	sb.WriteString(`<COFINS><COFINSNT><CST>99</CST></COFINSNT></COFINS>`)
	sb.WriteString(`</imposto>`)
	sb.WriteString(`</det>`)
}

// MontarEnvioLote embrulha a NF-e assinada no lote síncrono (enviNFe, indSinc=1).
func MontarEnvioLote(xmlNFeAssinado, idLote string) string {
	return `<enviNFe xmlns="` + NamespaceNFe + `" versao="` + VersaoLayout + `"><idLote>` + idLote + `</idLote><indSinc>1</indSinc>` + xmlNFeAssinado + `</enviNFe>`
}

// MontarConsultaProtocolo monta o consSitNFe para consulta por chave de acesso.
func MontarConsultaProtocolo(chaveAcesso string, ambiente int) (string, error) {
	if err := fiscal.ValidarChaveAcesso(chaveAcesso); err != nil {
		return "", domain.NovoErroValidacao("chaveAcesso", err.Error())
	}
	return fmt.Sprintf(`<consSitNFe xmlns="%s" versao="%s"><tpAmb>%d</tpAmb><xServ>CONSULTAR</xServ><chNFe>%s</chNFe></consSitNFe>`,
		NamespaceNFe, VersaoLayout, ambiente, chaveAcesso), nil
}

// MontarStatusServico monta o consStatServ (sondagem do serviço; cStat 107 = em operação).
func MontarStatusServico(codigoUF, ambiente int) string {
	return fmt.Sprintf(`<consStatServ xmlns="%s" versao="%s"><tpAmb>%d</tpAmb><cUF>%d</cUF><xServ>STATUS</xServ></consStatServ>`,
		NamespaceNFe, VersaoLayout, ambiente, codigoUF)
}

// MontarEventoCancelamento monta o envEvento do evento 110111 (sem assinatura).
// A justificativa deve ter entre 15 e 255 caracteres (regra do schema).
func MontarEventoCancelamento(ev EventoCancelamento) (string, error) {
	if err := fiscal.ValidarChaveAcesso(ev.ChaveAcesso); err != nil {
		return "", domain.NovoErroValidacao("chaveAcesso", err.Error())
	}
	if ev.Protocolo == "" {
		return "", domain.NovoErroValidacao("protocolo", "protocolo de autorização é obrigatório para cancelar")
	}
	just := strings.TrimSpace(ev.Justificativa)
	if len(just) < 15 || len(just) > 255 {
		return "", domain.NovoErroValidacao("justificativa", "deve ter entre 15 e 255 caracteres")
	}
	seq := ev.Sequencia
	if seq <= 0 {
		seq = 1
	}
	quando := ev.Quando
	if quando.IsZero() {
		quando = time.Now()
	}
	dhEvento := quando.In(fusoBrasilia).Format("2006-01-02T15:04:05-07:00")
	id := fmt.Sprintf("ID110111%s%02d", ev.ChaveAcesso, seq)

	var sb strings.Builder
	sb.WriteString(`<envEvento xmlns="` + NamespaceNFe + `" versao="` + VersaoEvento + `">`)
	sb.WriteString(`<idLote>1</idLote>`)
	sb.WriteString(`<evento versao="` + VersaoEvento + `">`)
	sb.WriteString(`<infEvento Id="` + id + `">`)
	tag(&sb, "cOrgao", "35")
	tag(&sb, "tpAmb", fmt.Sprintf("%d", ev.Ambiente))
	tag(&sb, "CNPJ", fiscal.SomenteDigitos(ev.CNPJ))
	tag(&sb, "chNFe", ev.ChaveAcesso)
	tag(&sb, "dhEvento", dhEvento)
	tag(&sb, "tpEvento", "110111")
	tag(&sb, "nSeqEvento", fmt.Sprintf("%d", seq))
	tag(&sb, "verEvento", VersaoEvento)
	sb.WriteString(`<detEvento versao="` + VersaoEvento + `">`)
	tag(&sb, "descEvento", "Cancelamento")
	tag(&sb, "nProt", ev.Protocolo)
	tag(&sb, "xJust", texto(just))
	sb.WriteString(`</detEvento>`)
	sb.WriteString(`</infEvento>`)
	sb.WriteString(`</evento>`)
	sb.WriteString(`</envEvento>`)
	return sb.String(), nil
}

// Validar checa os dados da nota sem montar o XML. Útil para recusar o
// pedido antes de consumir um número da série.
func Validar(d DadosNFe) error {
	return validarDados(&d)
}

func validarDados(d *DadosNFe) error {
	if !fiscal.ValidarCNPJ(d.Emitente.CNPJ) {
		return domain.NovoErroValidacao("emitente.cnpj", "CNPJ inválido")
	}
	if strings.TrimSpace(d.Emitente.RazaoSocial) == "" {
		return domain.NovoErroValidacao("emitente.razaoSocial", "obrigatório")
	}
	if fiscal.SomenteDigitos(d.Emitente.InscricaoEstadual) == "" {
		return domain.NovoErroValidacao("emitente.inscricaoEstadual", "obrigatória")
	}
	if err := validarEndereco("emitente.endereco", d.Emitente.Endereco); err != nil {
		return err
	}
	docDest := fiscal.SomenteDigitos(d.Destinatario.CPFCNPJ)
	switch len(docDest) {
	case 11:
		if !fiscal.ValidarCPF(docDest) {
			return domain.NovoErroValidacao("destinatario.cpfCnpj", "CPF inválido")
		}
	case 14:
		if !fiscal.ValidarCNPJ(docDest) {
			return domain.NovoErroValidacao("destinatario.cpfCnpj", "CNPJ inválido")
		}
	default:
		return domain.NovoErroValidacao("destinatario.cpfCnpj", "deve ter 11 (CPF) ou 14 (CNPJ) dígitos")
	}
	if strings.TrimSpace(d.Destinatario.RazaoSocial) == "" {
		return domain.NovoErroValidacao("destinatario.razaoSocial", "obrigatória")
	}
	if d.Destinatario.Endereco != nil {
		if err := validarEndereco("destinatario.endereco", *d.Destinatario.Endereco); err != nil {
			return err
		}
	}
	if strings.TrimSpace(d.NaturezaOperacao) == "" {
		d.NaturezaOperacao = "Venda"
	}
	if len(d.Itens) == 0 {
		return domain.NovoErroValidacao("itens", "a nota deve ter ao menos um item")
	}
	for i, item := range d.Itens {
		prefixo := fmt.Sprintf("itens[%d]", i)
		if strings.TrimSpace(item.Descricao) == "" {
			return domain.NovoErroValidacao(prefixo+".descricao", "obrigatória")
		}
		if len(fiscal.SomenteDigitos(item.CFOP)) != 4 {
			return domain.NovoErroValidacao(prefixo+".cfop", "deve ter 4 dígitos")
		}
		if fiscal.SomenteDigitos(item.NCM) == "" {
			return domain.NovoErroValidacao(prefixo+".ncm", "obrigatório")
		}
		if !item.Quantidade.IsPositive() {
			return domain.NovoErroValidacao(prefixo+".quantidade", "deve ser maior que zero")
		}
		if item.ValorTotal.IsNegative() {
			return domain.NovoErroValidacao(prefixo+".valorTotal", "não pode ser negativo")
		}
	}
	return nil
}

func validarEndereco(prefixo string, e Endereco) error {
	if strings.TrimSpace(e.Logradouro) == "" {
		return domain.NovoErroValidacao(prefixo+".logradouro", "obrigatório")
	}
	if len(fiscal.SomenteDigitos(e.CodigoMunicipio)) != 7 {
		return domain.NovoErroValidacao(prefixo+".codigoMunicipio", "código IBGE deve ter 7 dígitos")
	}
	if len(e.UF) != 2 {
		return domain.NovoErroValidacao(prefixo+".uf", "deve ter 2 letras")
	}
	if len(fiscal.SomenteDigitos(e.CEP)) != 8 {
		return domain.NovoErroValidacao(prefixo+".cep", "deve ter 8 dígitos")
	}
	return nil
}

func tag(sb *strings.Builder, nome, valor string) {
	sb.WriteString(`<` + nome + `>` + valor + `</` + nome + `>`)
}

// texto normaliza (sem acentos, espaços colapsados) e escapa texto livre.
func texto(s string) string {
	return escapeXML(fiscal.NormalizarTexto(s))
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, `"`, "&quot;")
	return s
}
