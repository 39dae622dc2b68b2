package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/gmontinny/ia-rag/internal/bootstrap"
	"github.com/gmontinny/ia-rag/internal/config"
	"github.com/gmontinny/ia-rag/internal/core/domain"
	"github.com/gmontinny/ia-rag/internal/core/ports"
	"github.com/gmontinny/ia-rag/internal/observability/logging"
)

const serviceName = "iarag"

// services is what the commands need from the wired application.
type services struct {
	Searcher ports.Searcher
	Asker    ports.Asker
	Ingestor ports.LawIngestor
	Catalog  ports.LawCatalog
	Prepare  func(context.Context) error
	Close    func()
}

type opener func(ctx context.Context, c *cli.Context) (*services, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp(os.Stdout, openServices(os.Stderr))
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "erro:", err)
		if hint := hintFor(err); hint != "" {
			fmt.Fprintln(os.Stderr, "dica:", hint)
		}
		os.Exit(1)
	}
}

func openServices(logOut io.Writer) opener {
	return func(ctx context.Context, c *cli.Context) (*services, error) {
		if err := config.LoadDotEnv(); err != nil {
			return nil, err
		}
		cfg := config.Load()
		level := cfg.LogLevel
		if c.String("log-level") != "" {
			level = c.String("log-level")
		}
		logger := logging.New(logOut, serviceName, level, cfg.LogFormat)

		app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: serviceName, Logger: logger})
		if err != nil {
			return nil, err
		}
		return &services{
			Searcher: app.Searcher,
			Asker:    app.Asker,
			Ingestor: app.Ingestor,
			Catalog:  app.Catalog,
			Prepare:  app.PrepareStores,
			Close:    app.Close,
		}, nil
	}
}

func newApp(out io.Writer, open opener) *cli.App {
	withServices := func(run func(c *cli.Context, svc *services) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			svc, err := open(c.Context, c)
			if err != nil {
				return err
			}
			if svc.Close != nil {
				defer svc.Close()
			}
			return run(c, svc)
		}
	}

	return &cli.App{
		Name:           "iarag",
		Usage:          "RAG sobre legislação sanitária: ingestão, busca e perguntas com evidências",
		Writer:         out,
		DefaultCommand: "ingest",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Nível de log (debug, info, warn, error); padrão: LOG_LEVEL",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Imprime o resultado em JSON",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "ingest",
				Usage: "Executa a ingestão e indexação completa de DATA_DIR",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "Reindexa mesmo se o conteúdo não mudou"},
					&cli.StringFlag{Name: "file", Usage: "Ingere apenas este arquivo de DATA_DIR"},
				},
				Action: withServices(func(c *cli.Context, svc *services) error {
					return runIngest(c, svc, out)
				}),
			},
			{
				Name:  "search",
				Usage: "Consulta lexical, semântica, híbrida ou todas, com trilha no grafo",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "q", Aliases: []string{"query"}, Usage: "Texto da consulta", Required: true},
					&cli.StringFlag{Name: "mode", Value: "all", Usage: "lexical|semantic|hybrid|all"},
					&cli.IntFlag{Name: "size", Value: 10, Usage: "Candidatos do Elasticsearch"},
					&cli.IntFlag{Name: "limit", Value: 5, Usage: "Top-K no Qdrant"},
					&cli.BoolFlag{Name: "no-explain", Usage: "Não busca a trilha no grafo"},
					&cli.StringFlag{Name: "filter-law", Usage: "Restringe a busca semântica a uma lei (law_id)"},
				},
				Action: withServices(func(c *cli.Context, svc *services) error {
					return runSearch(c, svc, out)
				}),
			},
			{
				Name:  "ask",
				Usage: "Responde uma pergunta com base nas evidências recuperadas",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "q", Aliases: []string{"query"}, Usage: "Pergunta em linguagem natural", Required: true},
					&cli.IntFlag{Name: "topk", Value: 6, Usage: "Número de evidências"},
					&cli.StringFlag{Name: "provider", Usage: "gemini|openai; padrão: LLM_PROVIDER"},
					&cli.StringFlag{Name: "model", Usage: "Modelo; padrão: *_MODEL"},
					&cli.Float64Flag{Name: "temperature", Value: 0.2, Usage: "Temperatura de geração"},
					&cli.IntFlag{Name: "max-tokens", Value: 800, Usage: "Limite de tokens de saída"},
					&cli.BoolFlag{Name: "no-hybrid", Usage: "Desativa o filtro lexical antes do Qdrant"},
					&cli.StringFlag{Name: "filter-law", Usage: "Filtra evidências por law_id"},
					&cli.BoolFlag{Name: "debug", Usage: "Mostra evidências e prompts enviados ao LLM"},
				},
				Action: withServices(func(c *cli.Context, svc *services) error {
					return runAsk(c, svc, out)
				}),
			},
			{
				Name:  "laws",
				Usage: "Lista as leis registradas (requer POSTGRES_DSN)",
				Action: withServices(func(c *cli.Context, svc *services) error {
					records, err := svc.Catalog.List(c.Context)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return writeJSON(out, records)
					}
					renderLaws(out, records)
					return nil
				}),
			},
		},
	}
}

func runIngest(c *cli.Context, svc *services, out io.Writer) error {
	if svc.Prepare != nil {
		if err := svc.Prepare(c.Context); err != nil {
			return err
		}
	}
	force := c.Bool("force")

	var (
		stats []domain.IngestStats
		err   error
	)
	if file := strings.TrimSpace(c.String("file")); file != "" {
		var one *domain.IngestStats
		one, err = svc.Ingestor.IngestFile(c.Context, file, force)
		if one != nil {
			stats = append(stats, *one)
		}
	} else {
		stats, err = svc.Ingestor.IngestAll(c.Context, force)
	}

	if c.Bool("json") {
		if jerr := writeJSON(out, stats); jerr != nil {
			return jerr
		}
	} else {
		renderIngest(out, stats)
	}
	return err
}

func runSearch(c *cli.Context, svc *services, out io.Writer) error {
	mode, err := domain.ParseRetrievalMode(c.String("mode"))
	if err != nil {
		return err
	}
	query := c.String("q")
	result, err := svc.Searcher.Search(c.Context, domain.SearchRequest{
		Query:     query,
		Mode:      mode,
		Size:      c.Int("size"),
		Limit:     c.Int("limit"),
		Explain:   !c.Bool("no-explain"),
		FilterLaw: strings.TrimSpace(c.String("filter-law")),
	})
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(out, result)
	}
	renderSearch(out, query, result)
	return nil
}

func runAsk(c *cli.Context, svc *services, out io.Writer) error {
	answer, err := svc.Asker.Ask(c.Context, domain.AskRequest{
		Query:       c.String("q"),
		Provider:    c.String("provider"),
		Model:       strings.TrimSpace(c.String("model")),
		TopK:        c.Int("topk"),
		Temperature: c.Float64("temperature"),
		MaxTokens:   c.Int("max-tokens"),
		Hybrid:      !c.Bool("no-hybrid"),
		FilterLaw:   strings.TrimSpace(c.String("filter-law")),
		Debug:       c.Bool("debug"),
	})
	if answer != nil {
		if c.Bool("json") {
			if jerr := writeJSON(out, answer); jerr != nil {
				return jerr
			}
		} else {
			renderAnswer(out, answer, c.Bool("debug"))
		}
	}
	return err
}

// hintFor suggests the next step for errors the user can act on.
func hintFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnanswerable):
		return "" // the error text already carries the retrieval hint
	case errors.Is(err, domain.ErrInvalidInput):
		return "revise os argumentos com --help"
	case errors.Is(err, domain.ErrTemporary):
		return "os serviços de busca parecem indisponíveis; suba-os com docker compose up -d e tente novamente"
	case errors.Is(err, domain.ErrNotFound):
		return "confira DATA_DIR e POSTGRES_DSN no .env"
	case errors.Is(err, domain.ErrRetrieval):
		if store, ok := domain.FailedStore(err); ok {
			return fmt.Sprintf("falha em %s; verifique o serviço e rode iarag ingest se o índice estiver vazio", store)
		}
		return "verifique os serviços de busca e rode iarag ingest se o índice estiver vazio"
	default:
		return ""
	}
}
