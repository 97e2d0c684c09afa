package main

import (
	"log"

	"ronin/internal/embedding"
	"ronin/internal/shared/config"
	"ronin/internal/shared/server"
	"ronin/internal/store"
)

func main() {
	cfg := config.Load()

	dsn := cfg.DatabaseURL
	if dsn == "" {
		dsn = ":memory:"
	}
	repo, err := store.Open(dsn, cfg.ModelVersion)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer repo.Close()

	dashboard := server.NewDashboard(repo, embedding.NewHashFallback(384))
	r := server.NewRouter(cfg, dashboard)

	addr := server.Addr(cfg.Port)
	log.Printf("Starting dashboard API on %s", addr)

	if err := r.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
