package main

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"github.com/avezek/docuchat/internal/api"
	"github.com/avezek/docuchat/internal/config"
	"github.com/avezek/docuchat/internal/index"
	"github.com/avezek/docuchat/internal/ingest"
	"github.com/avezek/docuchat/internal/llm"
	"github.com/avezek/docuchat/internal/logger"
	"github.com/avezek/docuchat/internal/orchestrator"
	"github.com/avezek/docuchat/internal/retrieve"
	"github.com/avezek/docuchat/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal(err)
	}

	logg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatal(err)
	}
	defer logg.Sync()

	// Postgres gives a persistent index and conversation history; without it
	// the service runs fully in memory.
	var (
		idx     index.Index
		dbStore *store.PgStore
	)
	if cfg.PgConn != "" {
		idx, err = index.NewPg(cfg.PgConn, cfg.EmbedDim, cfg.FetchK, cfg.MMRLambda)
		if err != nil {
			logg.Fatal("opening pgvector index failed", "err", err)
		}
		dbStore, err = store.NewPgStore(cfg.PgConn)
		if err != nil {
			logg.Fatal("opening conversation store failed", "err", err)
		}
	} else {
		logg.Warn("PG_CONN not set; using in-memory index, no persistence")
		idx = index.NewMemory(cfg.FetchK, cfg.MMRLambda)
	}

	client := llm.NewClient(cfg, logg)
	pipeline := ingest.NewPipeline(client, idx, cfg.ChunkSize, cfg.ChunkOverlap, logg)
	retriever := retrieve.NewRetriever(client, idx, cfg.RetrievalK)
	grader := retrieve.NewGrader(client, logg)
	orch := orchestrator.New(retriever, grader, client, logg)

	app := fiber.New()
	api.RegisterRoutes(app, api.NewHandler(pipeline, orch, dbStore, logg))

	logg.Info("server starting", "addr", cfg.ServerAddr)
	if err := app.Listen(cfg.ServerAddr); err != nil {
		logg.Fatal("server stopped", "err", err)
	}
}
