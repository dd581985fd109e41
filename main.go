package main

import (
	"context"
	"log"
	"os"

	"emochat/internal/api"
	"emochat/internal/chat"
	"emochat/internal/config"
	"emochat/internal/llm"
	"emochat/internal/rag"
	"emochat/internal/redis"
	"emochat/internal/storage"
	"emochat/internal/store"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("EMOCHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("EMOCHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	ctx := context.Background()

	var st store.Store = store.NewSQLStore(db, dbType)
	if cfg.Redis.Host != "" {
		rdb, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			log.Fatalf("create redis client: %v", err)
		}
		defer rdb.Close()
		st = store.NewCachedStore(st, rdb)
	}

	retriever, err := rag.NewQdrantRetriever(ctx, cfg)
	if err != nil {
		log.Fatalf("init retriever: %v", err)
	}
	defer retriever.Close()

	if count, err := retriever.ReloadDocuments(ctx, cfg.BasicConfig.DocsDir); err != nil {
		log.Printf("initial document load skipped: %v", err)
	} else {
		log.Printf("indexed %d document chunks from %s", count, cfg.BasicConfig.DocsDir)
	}

	generator, err := llm.NewModelGenerator(ctx, cfg)
	if err != nil {
		log.Fatalf("init %s model: %v", cfg.BasicConfig.LLMProvider, err)
	}
	defer generator.Close()

	engine := chat.NewEngine(st, retriever, generator, cfg.BasicConfig)
	handlers := api.NewHandler(
		engine,
		st,
		retriever,
		cfg.BasicConfig.ChatAPIKey,
		cfg.BasicConfig.AdminAPIKey,
		cfg.BasicConfig.DocsDir,
	)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8000"
	}
	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
