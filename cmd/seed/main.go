// seed cadastra (ou atualiza) o emitente ativo a partir de um arquivo JSON.
//
// Uso: go run ./cmd/seed [caminho/emitente.json]
// Por padrão procura emitente.json no diretório atual. A conexão usa a mesma
// configuração da API (DATABASE_URL ou DB_*).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gestorfin/fiscal-api/internal/infrastructure/postgres"
	"github.com/gestorfin/fiscal-api/pkg/config"
	"github.com/gestorfin/fiscal-api/pkg/fiscal"
)

type emitenteJSON struct {
	CNPJ               string          `json:"cnpj"`
	RazaoSocial        string          `json:"razao_social"`
	NomeFantasia       string          `json:"nome_fantasia"`
	InscricaoEstadual  string          `json:"inscricao_estadual"`
	InscricaoMunicipal string          `json:"inscricao_municipal"`
	CRT                int             `json:"crt"`
	RegimeTributacao   int             `json:"regime_tributacao"`
	OptanteSimples     bool            `json:"optante_simples"`
	CodigoServico      string          `json:"codigo_servico"`
	AliquotaISS        decimal.Decimal `json:"aliquota_iss"`
	Logradouro         string          `json:"logradouro"`
	Numero             string          `json:"numero"`
	Complemento        string          `json:"complemento"`
	Bairro             string          `json:"bairro"`
	CodigoMunicipio    string          `json:"codigo_municipio"`
	Municipio          string          `json:"municipio"`
	UF                 string          `json:"uf"`
	CEP                string          `json:"cep"`
}

func main() {
	caminho := "emitente.json"
	if len(os.Args) > 1 {
		caminho = os.Args[1]
	}
	raw, err := os.ReadFile(caminho)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ler %s: %v\n", caminho, err)
		os.Exit(1)
	}
	var e emitenteJSON
	if err := json.Unmarshal(raw, &e); err != nil {
		fmt.Fprintf(os.Stderr, "decodificar JSON: %v\n", err)
		os.Exit(1)
	}
	if !fiscal.ValidarCNPJ(e.CNPJ) {
		fmt.Fprintln(os.Stderr, "cnpj inválido")
		os.Exit(1)
	}
	if e.RazaoSocial == "" {
		fmt.Fprintln(os.Stderr, "razao_social obrigatória")
		os.Exit(1)
	}
	if e.CRT == 0 {
		e.CRT = 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "carregar configuração: %v\n", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NovoPool(ctx, cfg.DB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "conectar ao PostgreSQL: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Um único emitente ativo por instalação: desativa os anteriores e
	// cadastra o novo na mesma transação.
	tx, err := pool.Begin(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "abrir transação: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE emitentes SET ativo = FALSE, updated_at = now() WHERE ativo`); err != nil {
		fmt.Fprintf(os.Stderr, "desativar emitentes: %v\n", err)
		os.Exit(1)
	}

	id := uuid.New().String()
	_, err = tx.Exec(ctx, `
		INSERT INTO emitentes
			(id, cnpj, razao_social, nome_fantasia, inscricao_estadual, inscricao_municipal,
			 crt, regime_tributacao, optante_simples, codigo_servico, aliquota_iss,
			 logradouro, numero, complemento, bairro, codigo_municipio, municipio, uf, cep,
			 ativo, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
		        $12, $13, $14, $15, $16, $17, $18, $19, TRUE, now(), now())`,
		id, fiscal.SomenteDigitos(e.CNPJ), e.RazaoSocial, e.NomeFantasia,
		fiscal.SomenteDigitos(e.InscricaoEstadual), fiscal.SomenteDigitos(e.InscricaoMunicipal),
		e.CRT, e.RegimeTributacao, e.OptanteSimples, e.CodigoServico, e.AliquotaISS,
		e.Logradouro, e.Numero, e.Complemento, e.Bairro,
		e.CodigoMunicipio, e.Municipio, e.UF, fiscal.SomenteDigitos(e.CEP),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "inserir emitente: %v\n", err)
		os.Exit(1)
	}

	if err := tx.Commit(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "commit: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Emitente %s cadastrado como ativo (id %s)\n", e.RazaoSocial, id)
}
