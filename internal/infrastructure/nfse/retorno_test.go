package nfse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestorfin/fiscal-api/internal/domain"
	"github.com/gestorfin/fiscal-api/internal/domain/entity"
)

func TestAnalisarRetorno_Autorizada(t *testing.T) {
	xml := `<RetornoConsulta xmlns="http://www.prefeitura.sp.gov.br/nfe">
	  <Cabecalho xmlns="" Versao="1"><Sucesso>true</Sucesso></Cabecalho>
	  <NFe xmlns="">
	    <ChaveNFe><InscricaoPrestador>12345678</InscricaoPrestador><NumeroNFe>1234</NumeroNFe><CodigoVerificacao>ABCD-EFGH</CodigoVerificacao></ChaveNFe>
	    <DataEmissaoNFe>2025-01-15T10:00:00</DataEmissaoNFe>
	  </NFe>
	</RetornoConsulta>`
	r, err := AnalisarRetorno(xml)
	require.NoError(t, err)
	assert.Equal(t, entity.SituacaoAutorizada, r.Situacao)
	assert.Equal(t, "1234", r.NumeroNFSe)
	assert.Equal(t, "ABCD-EFGH", r.CodigoVerificacao)
}

func TestAnalisarRetorno_NumeroNotaVariante(t *testing.T) {
	xml := `<Retorno><NumeroNota>567</NumeroNota><CodigoVerificacaoNFe>XYZ1</CodigoVerificacaoNFe></Retorno>`
	r, err := AnalisarRetorno(xml)
	require.NoError(t, err)
	assert.Equal(t, entity.SituacaoAutorizada, r.Situacao)
	assert.Equal(t, "567", r.NumeroNFSe)
	assert.Equal(t, "XYZ1", r.CodigoVerificacao)
}

func TestAnalisarRetorno_Erros(t *testing.T) {
	xml := `<RetornoEnvioRPS xmlns="http://www.prefeitura.sp.gov.br/nfe">
	  <Cabecalho xmlns="" Versao="1"><Sucesso>false</Sucesso></Cabecalho>
	  <Erro xmlns=""><Codigo>1301</Codigo><Descricao>Inscricao municipal invalida</Descricao></Erro>
	  <Erro xmlns=""><Codigo>1102</Codigo><Descricao>Assinatura do RPS invalida</Descricao></Erro>
	</RetornoEnvioRPS>`
	r, err := AnalisarRetorno(xml)
	require.NoError(t, err)
	assert.Equal(t, entity.SituacaoRejeitada, r.Situacao)
	assert.Equal(t, "1301", r.Codigo, "primeiro código de erro")
	assert.Contains(t, r.Motivo, "Inscricao municipal invalida")
	assert.Contains(t, r.Motivo, "Assinatura do RPS invalida")
}

func TestAnalisarRetorno_LoteAssincrono(t *testing.T) {
	xml := `<RetornoEnvioRPS><Cabecalho><Sucesso>true</Sucesso><NumeroLote>555</NumeroLote></Cabecalho></RetornoEnvioRPS>`
	r, err := AnalisarRetorno(xml)
	require.NoError(t, err)
	assert.Equal(t, entity.SituacaoProcessando, r.Situacao)
	assert.Equal(t, "555", r.Lote)
	assert.False(t, r.Conclusivo())
}

func TestAnalisarRetorno_EmbrulhadoEmRetornoXML(t *testing.T) {
	// O serviço devolve o XML útil escapado dentro de RetornoXML.
	xml := `<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body>
	  <ConsultaNFeResponse xmlns="http://www.prefeitura.sp.gov.br/nfe">
	    <RetornoXML>&lt;RetornoConsulta&gt;&lt;NumeroNFe&gt;777&lt;/NumeroNFe&gt;&lt;CodigoVerificacao&gt;AB12&lt;/CodigoVerificacao&gt;&lt;/RetornoConsulta&gt;</RetornoXML>
	  </ConsultaNFeResponse>
	</soap:Body></soap:Envelope>`
	r, err := AnalisarRetorno(xml)
	require.NoError(t, err)
	assert.Equal(t, entity.SituacaoAutorizada, r.Situacao)
	assert.Equal(t, "777", r.NumeroNFSe)
	assert.Equal(t, "AB12", r.CodigoVerificacao)
}

func TestAnalisarRetorno_TextoLivreProcessando(t *testing.T) {
	casos := []string{
		`<Retorno><Mensagem>RPS nao encontrado na base</Mensagem></Retorno>`,
		`<Retorno><Mensagem>Lote em processamento</Mensagem></Retorno>`,
	}
	for _, xml := range casos {
		r, err := AnalisarRetorno(xml)
		require.NoError(t, err)
		assert.Equal(t, entity.SituacaoProcessando, r.Situacao, xml)
	}
}

func TestAnalisarRetorno_ErroAindaEmProcessamento(t *testing.T) {
	// A prefeitura também sinaliza "ainda não disponível" dentro de blocos
	// Erro; isso não pode virar rejeição, senão a consulta por RPS encerra a
	// reconciliação antes da consulta do lote.
	casos := []string{
		`<RetornoConsulta><Erro><Codigo>E160</Codigo><Descricao>RPS nao encontrado na base de dados</Descricao></Erro></RetornoConsulta>`,
		`<RetornoConsulta><Erro><Codigo>E170</Codigo><Descricao>Lote em processamento</Descricao></Erro></RetornoConsulta>`,
	}
	for _, xml := range casos {
		r, err := AnalisarRetorno(xml)
		require.NoError(t, err)
		assert.Equal(t, entity.SituacaoProcessando, r.Situacao, xml)
		assert.False(t, r.Conclusivo(), xml)
	}
}

func TestAnalisarRetorno_SemDesfecho(t *testing.T) {
	r, err := AnalisarRetorno(`<Retorno><Outra>coisa</Outra></Retorno>`)
	require.NoError(t, err)
	assert.Equal(t, entity.SituacaoRejeitada, r.Situacao)
}

func TestAnalisarRetornoCancelamento(t *testing.T) {
	t.Run("homologado", func(t *testing.T) {
		r, err := AnalisarRetornoCancelamento(`<RetornoCancelamentoNFe><Cabecalho><Sucesso>true</Sucesso></Cabecalho></RetornoCancelamentoNFe>`)
		require.NoError(t, err)
		assert.Equal(t, entity.SituacaoCancelada, r.Situacao)
	})

	t.Run("recusado com erro", func(t *testing.T) {
		xml := `<RetornoCancelamentoNFe><Erro><Codigo>1350</Codigo><Descricao>NFS-e ja cancelada</Descricao></Erro></RetornoCancelamentoNFe>`
		r, err := AnalisarRetornoCancelamento(xml)
		require.NoError(t, err)
		assert.Equal(t, entity.SituacaoRejeitada, r.Situacao)
		assert.Equal(t, "1350", r.Codigo)
	})

	t.Run("sucesso false sem bloco de erro", func(t *testing.T) {
		r, err := AnalisarRetornoCancelamento(`<Retorno><Sucesso>false</Sucesso></Retorno>`)
		require.NoError(t, err)
		assert.Equal(t, entity.SituacaoRejeitada, r.Situacao)
	})
}

func TestAnalisarRetorno_XMLIlegivel(t *testing.T) {
	_, err := AnalisarRetorno("<<<nada")
	assert.ErrorIs(t, err, domain.ErrTransporte)
}
