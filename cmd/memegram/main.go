package main

import (
	"flag"

	"github.com/joho/godotenv"
	"github.com/mrodrigues/memegram/internal/app"
	"github.com/mrodrigues/memegram/internal/session"
	"go.uber.org/fx"
)

func main() {
	// A local .env is optional; real deployments use the config file
	// or exported environment variables.
	_ = godotenv.Load()

	configFlag := flag.String("config", "", "path to config file (default ~/.memegram/config.toml)")
	flag.Parse()

	configPath := *configFlag
	if configPath == "" {
		configPath = session.ConfigPath()
	}

	fx.New(
		app.Module(app.Params{ConfigPath: configPath}),
		fx.NopLogger,
	).Run()
}
