package domain

import (
	"errors"
	"fmt"
)

// Erros de domínio (sem dependências externas).
var (
	ErrNaoEncontrada          = errors.New("nota fiscal não encontrada")
	ErrEmitenteNaoConfigurado = errors.New("emitente ativo não configurado")
	ErrDocumentoInvalido      = errors.New("documento fiscal inválido")
	ErrCertificadoFormato     = errors.New("certificado digital em formato inválido")
	ErrCertificadoSenha       = errors.New("senha do certificado digital incorreta")
	ErrCertificadoConteudo    = errors.New("certificado digital sem chave privada ou certificado")
	ErrAssinatura             = errors.New("falha na assinatura digital")
	ErrTransporte             = errors.New("falha de comunicação com a autoridade fiscal")
	ErrRejeitada              = errors.New("documento rejeitado pela autoridade fiscal")
	ErrConflito               = errors.New("conflito com o estado atual da nota")
)

// ErroValidacao indica um campo obrigatório ausente ou malformado,
// detectado antes de qualquer chamada de rede.
type ErroValidacao struct {
	Campo  string
	Motivo string
}

func (e *ErroValidacao) Error() string {
	return fmt.Sprintf("campo %s: %s", e.Campo, e.Motivo)
}

func (e *ErroValidacao) Unwrap() error { return ErrDocumentoInvalido }

// NovoErroValidacao cria um ErroValidacao para o campo informado.
func NovoErroValidacao(campo, motivo string) error {
	return &ErroValidacao{Campo: campo, Motivo: motivo}
}

// ErroRejeicao carrega o código e o motivo devolvidos pela autoridade fiscal.
// Terminal para o número alocado; a reemissão usa um número novo.
type ErroRejeicao struct {
	Codigo string
	Motivo string
}

func (e *ErroRejeicao) Error() string {
	return fmt.Sprintf("rejeição %s: %s", e.Codigo, e.Motivo)
}

func (e *ErroRejeicao) Unwrap() error { return ErrRejeitada }
