package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/config"
)

func main() {

	// a missing .env is fine; real deployments use the environment
	_ = godotenv.Load()

	ctx := context.Background()
	cfg := config.MustLoad()
	app, err := server.NewApp(ctx, cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
