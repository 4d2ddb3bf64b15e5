package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/pulsectl/internal/observability"
	"github.com/danmuck/pulsectl/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to pulsed config.toml")
	flag.Parse()

	observability.InitLogger("pulsed")

	cfg := server.DefaultServiceConfig()
	if *configPath != "" {
		loaded, err := loadServiceConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pulsed: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	svc := server.NewServiceWithConfig(cfg)
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "pulsed: %v\n", err)
		os.Exit(1)
	}
}
