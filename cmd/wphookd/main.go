package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/wphook/internal/config"
	"github.com/matheus3301/wphook/internal/daemon"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", config.DefaultPath(), "path to config.toml")
	flag.Parse()

	cfg, err := config.Resolve(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Config: cfg}),
		daemon.WithZapLogger(),
	)

	app.Run()
}
