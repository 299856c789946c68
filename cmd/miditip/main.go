package main

import (
	"log"
	"os"

	"github.com/rapidmidiex/miditip/internal/cmd"
	"github.com/rapidmidiex/miditip/internal/cmd/config"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("miditip: couldn't read env\n%v", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalln(err)
	}

	if err := cmd.NewApp(cfg).Run(os.Args); err != nil {
		log.Fatalln(err)
	}
}
