package nfse

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestorfin/fiscal-api/internal/domain"
)

func dadosTeste() DadosNFSe {
	return DadosNFSe{
		RPS: DadosRPS{
			Numero:         42,
			Serie:          "A",
			Tipo:           TipoRPS,
			Emissao:        time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC),
			OptanteSimples: true,
		},
		Prestador: Prestador{
			CNPJ:               "11.222.333/0001-81",
			InscricaoMunicipal: "12345678",
		},
		Tomador: Tomador{
			CPFCNPJ:     "529.982.247-25",
			RazaoSocial: "Cliente & Cia",
			Email:       "cliente@example.com",
		},
		Servico: Servico{
			CodigoServico: "2800",
			Discriminacao: "Consultoria em sistemas",
			AliquotaISS:   decimal.RequireFromString("0.05"),
			ValorServicos: decimal.RequireFromString("100.00"),
		},
	}
}

func TestMontarPedidoEnvioLote(t *testing.T) {
	xml, err := MontarPedidoEnvioLote(dadosTeste(), "assinatura-base64")
	require.NoError(t, err)

	assert.Contains(t, xml, `<PedidoEnvioLoteRPS xmlns="http://www.prefeitura.sp.gov.br/nfe"`)
	assert.Contains(t, xml, `<Cabecalho xmlns="" Versao="1">`)
	assert.Contains(t, xml, "<CPFCNPJRemetente><CNPJ>11222333000181</CNPJ></CPFCNPJRemetente>")
	assert.Contains(t, xml, "<QtdRPS>1</QtdRPS>")
	assert.Contains(t, xml, "<ValorTotalServicos>100.00</ValorTotalServicos>")
	assert.Contains(t, xml, "<ValorTotalDeducoes>0.00</ValorTotalDeducoes>")

	assert.Contains(t, xml, `<RPS xmlns="">`)
	assert.Contains(t, xml, "<Assinatura>assinatura-base64</Assinatura>")
	assert.Contains(t, xml, "<InscricaoPrestador>12345678</InscricaoPrestador>")
	assert.Contains(t, xml, "<SerieRPS>A</SerieRPS>")
	assert.Contains(t, xml, "<NumeroRPS>42</NumeroRPS>")
	assert.Contains(t, xml, "<TipoRPS>RPS</TipoRPS>")
	assert.Contains(t, xml, "<DataEmissao>2025-01-15</DataEmissao>")
	assert.Contains(t, xml, "<StatusRPS>N</StatusRPS>")
	assert.Contains(t, xml, "<TributacaoRPS>T</TributacaoRPS>", "optante do Simples tributa como T")
	assert.Contains(t, xml, "<AliquotaServicos>5.0000</AliquotaServicos>", "alíquota em percentual")
	assert.Contains(t, xml, "<ISSRetido>false</ISSRetido>")
	assert.Contains(t, xml, "<CPFCNPJTomador><CPF>52998224725</CPF></CPFCNPJTomador>")
	assert.Contains(t, xml, "<RazaoSocialTomador>Cliente &amp; Cia</RazaoSocialTomador>")
	assert.Contains(t, xml, "<Discriminacao>Consultoria em sistemas</Discriminacao>")
}

func TestMontarPedidoEnvioLote_CamposOpcionais(t *testing.T) {
	d := dadosTeste()
	d.Tomador = Tomador{CPFCNPJ: "11.222.333/0001-81"}
	xml, err := MontarPedidoEnvioLote(d, "x")
	require.NoError(t, err)

	assert.Contains(t, xml, "<CPFCNPJTomador><CNPJ>11222333000181</CNPJ></CPFCNPJTomador>")
	assert.NotContains(t, xml, "<RazaoSocialTomador>")
	assert.NotContains(t, xml, "<EmailTomador>")
	assert.NotContains(t, xml, "<EnderecoTomador>")
}

func TestMontarPedidoEnvioLote_Validacoes(t *testing.T) {
	casos := []struct {
		nome  string
		campo string
		mudar func(*DadosNFSe)
	}{
		{"CNPJ prestador inválido", "prestador.cnpj", func(d *DadosNFSe) { d.Prestador.CNPJ = "123" }},
		{"sem inscrição municipal", "prestador.inscricaoMunicipal", func(d *DadosNFSe) { d.Prestador.InscricaoMunicipal = "" }},
		{"número zero", "rps.numero", func(d *DadosNFSe) { d.RPS.Numero = 0 }},
		{"série vazia", "rps.serie", func(d *DadosNFSe) { d.RPS.Serie = "" }},
		{"tipo desconhecido", "rps.tipo", func(d *DadosNFSe) { d.RPS.Tipo = "NOTA" }},
		{"CPF tomador inválido", "tomador.cpfCnpj", func(d *DadosNFSe) { d.Tomador.CPFCNPJ = "11111111111" }},
		{"valor zero", "servico.valorServicos", func(d *DadosNFSe) { d.Servico.ValorServicos = decimal.Zero }},
		{"sem código de serviço", "servico.codigoServico", func(d *DadosNFSe) { d.Servico.CodigoServico = "" }},
		{"sem discriminação", "servico.discriminacao", func(d *DadosNFSe) { d.Servico.Discriminacao = "  " }},
	}
	for _, c := range casos {
		t.Run(c.nome, func(t *testing.T) {
			d := dadosTeste()
			c.mudar(&d)
			_, err := MontarPedidoEnvioLote(d, "x")
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrDocumentoInvalido)
			var ev *domain.ErroValidacao
			require.ErrorAs(t, err, &ev)
			assert.Equal(t, c.campo, ev.Campo)
		})
	}
}

func TestMontarConsultaRPS(t *testing.T) {
	p := Prestador{CNPJ: "11222333000181", InscricaoMunicipal: "12345678"}
	xml, err := MontarConsultaRPS(p, "A", 42)
	require.NoError(t, err)
	assert.Contains(t, xml, `<PedidoConsultaNFe xmlns="http://www.prefeitura.sp.gov.br/nfe">`)
	assert.Contains(t, xml, `<Detalhe xmlns=""><ChaveRPS>`)
	assert.Contains(t, xml, "<SerieRPS>A</SerieRPS><NumeroRPS>42</NumeroRPS>")

	_, err = MontarConsultaRPS(p, "A", 0)
	assert.ErrorIs(t, err, domain.ErrDocumentoInvalido)
}

func TestMontarConsultaLote(t *testing.T) {
	xml, err := MontarConsultaLote("11222333000181", "987")
	require.NoError(t, err)
	assert.Contains(t, xml, `<PedidoConsultaLote xmlns="http://www.prefeitura.sp.gov.br/nfe">`)
	assert.Contains(t, xml, "<NumeroLote>987</NumeroLote>")

	// Lote 0 é o pedido usado como teste de conectividade.
	xml, err = MontarConsultaLote("11222333000181", "0")
	require.NoError(t, err)
	assert.Contains(t, xml, "<NumeroLote>0</NumeroLote>")

	_, err = MontarConsultaLote("123", "1")
	assert.ErrorIs(t, err, domain.ErrDocumentoInvalido)
}

func TestMontarCancelamento(t *testing.T) {
	p := Prestador{CNPJ: "11222333000181", InscricaoMunicipal: "12345678"}
	xml, err := MontarCancelamento(p, "1234", "assinatura-cancel")
	require.NoError(t, err)
	assert.Contains(t, xml, `<PedidoCancelamentoNFe xmlns="http://www.prefeitura.sp.gov.br/nfe">`)
	assert.Contains(t, xml, "<ChaveNFe><InscricaoPrestador>12345678</InscricaoPrestador><NumeroNFe>1234</NumeroNFe></ChaveNFe>")
	assert.Contains(t, xml, "<AssinaturaCancelamento>assinatura-cancel</AssinaturaCancelamento>")

	_, err = MontarCancelamento(p, "", "x")
	assert.ErrorIs(t, err, domain.ErrDocumentoInvalido)
}

func TestMontarPedidoEnvioLote_Deterministico(t *testing.T) {
	a, err := MontarPedidoEnvioLote(dadosTeste(), "sig")
	require.NoError(t, err)
	b, err := MontarPedidoEnvioLote(dadosTeste(), "sig")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, `<?xml version="1.0" encoding="UTF-8"?>`))
}
