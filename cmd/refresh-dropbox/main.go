package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/esimrouter/internal/app"
	"github.com/dmitrijs2005/esimrouter/internal/config"
)

func main() {
	ctx := context.Background()
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	err = a.Serve(ctx, a.RefreshDropbox)
	if cerr := a.Close(); cerr != nil {
		log.Printf("close: %v", cerr)
	}
	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}
}
