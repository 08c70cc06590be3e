package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	appfiscal "github.com/gestorfin/fiscal-api/internal/application/fiscal"
	"github.com/gestorfin/fiscal-api/internal/infrastructure/certstore"
	infranfe "github.com/gestorfin/fiscal-api/internal/infrastructure/nfe"
	infranfse "github.com/gestorfin/fiscal-api/internal/infrastructure/nfse"
	"github.com/gestorfin/fiscal-api/internal/infrastructure/postgres"
	httpRouter "github.com/gestorfin/fiscal-api/internal/interfaces/http"
	"github.com/gestorfin/fiscal-api/pkg/config"
	"github.com/gestorfin/fiscal-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("carregar configuração: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicação")

	ctx := context.Background()
	pool, err := postgres.NovoPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexão com o PostgreSQL")
	}
	defer pool.Close()

	cred, err := carregarCredencial(cfg.Cert)
	if err != nil {
		log.Fatal().Err(err).Msg("certificado digital A1")
	}
	if cred.Vencido(time.Now()) {
		log.Warn().Time("validade", cred.Validade()).Msg("certificado digital vencido; SEFAZ e prefeitura recusarão as assinaturas")
	}

	notaRepo := postgres.NewNotaFiscalRepository(pool)
	transmissaoRepo := postgres.NewTransmissaoRepository(pool)
	emitenteRepo := postgres.NewEmitenteRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	clienteSEFAZ := infranfe.NovoClienteSOAP(cred, cfg.NFE.Ambiente, log)
	clientePrefeitura := infranfse.NovoClienteSOAP(cred, cfg.NFSE.Ambiente, log)

	servicoNFe := appfiscal.NovoServicoNFe(
		notaRepo, transmissaoRepo, emitenteRepo, txRunner,
		clienteSEFAZ, cred, cfg.NFE, log,
	)
	servicoNFSe := appfiscal.NovoServicoNFSe(
		notaRepo, transmissaoRepo, emitenteRepo, txRunner,
		clientePrefeitura, cred, cfg.NFSE, log,
	)
	servicoNotas := appfiscal.NovoServicoNotas(notaRepo, transmissaoRepo)

	app := fiber.New(fiber.Config{
		AppName: cfg.App.Name,
		// Os Web Services fiscais podem demorar; o timeout fino fica no
		// cliente SOAP, aqui só um teto generoso.
		ReadTimeout:  time.Second * 30,
		WriteTimeout: time.Second * 90,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	httpRouter.Router(app, httpRouter.RouterDeps{
		NFe:   servicoNFe,
		NFSe:  servicoNFSe,
		Notas: servicoNotas,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("sinal de parada recebido, encerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("encerramento do servidor")
	}

	log.Info().Msg("aplicação parada")
}

// carregarCredencial lê o contêiner PKCS#12 do caminho ou do base64 da
// configuração, nessa ordem de preferência.
func carregarCredencial(cfg config.CertConfig) (*certstore.Credencial, error) {
	switch {
	case cfg.Arquivo != "":
		p12, err := os.ReadFile(cfg.Arquivo)
		if err != nil {
			return nil, fmt.Errorf("ler %s: %w", cfg.Arquivo, err)
		}
		return certstore.Carregar(p12, cfg.Senha)
	case cfg.Base64 != "":
		return certstore.CarregarBase64(cfg.Base64, cfg.Senha)
	default:
		return nil, fmt.Errorf("configure CERT_ARQUIVO ou CERT_BASE64 com o certificado A1")
	}
}
