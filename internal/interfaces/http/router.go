package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gestorfin/fiscal-api/internal/application/fiscal"
)

// RouterDeps dependências para o router.
type RouterDeps struct {
	NFe   *fiscal.ServicoNFe
	NFSe  *fiscal.ServicoNFSe
	Notas *fiscal.ServicoNotas
}

// Router registra as rotas da API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// NF-e (SEFAZ SP)
	nfeGroup := api.Group("/nfe")
	nfeHandler := NewNFeHandler(deps.NFe)
	nfeGroup.Post("/", nfeHandler.Emitir)
	nfeGroup.Get("/status-servico", nfeHandler.StatusServico)
	nfeGroup.Post("/:id/consultar", nfeHandler.Consultar)
	nfeGroup.Post("/:id/cancelar", nfeHandler.Cancelar)

	// NFS-e (Prefeitura de SP)
	nfseGroup := api.Group("/nfse")
	nfseHandler := NewNFSeHandler(deps.NFSe)
	nfseGroup.Post("/", nfseHandler.Emitir)
	nfseGroup.Get("/testar-conexao", nfseHandler.TestarConexao)
	nfseGroup.Post("/:id/consultar", nfseHandler.Consultar)
	nfseGroup.Post("/:id/cancelar", nfseHandler.Cancelar)

	// Consultas comuns
	notas := api.Group("/notas")
	notaHandler := NewNotaHandler(deps.Notas)
	notas.Get("/", notaHandler.Listar)
	notas.Get("/:id", notaHandler.Buscar)
	notas.Get("/:id/xml", notaHandler.XML)
	notas.Get("/:id/transmissoes", notaHandler.Transmissoes)
}
