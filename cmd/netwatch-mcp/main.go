// Command netwatch-mcp exposes ActionDispatcher as an MCP stdio server, so
// an LLM client can drive network diagnostics the same way cmd/netwatchd's
// HTTP API does. Logging goes to stderr exclusively: stdout is reserved for
// the MCP transport's framed JSON-RPC messages.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/rs/zerolog"

	"github.com/netwatch-hq/netwatch/pkg/app"
	"github.com/netwatch-hq/netwatch/pkg/config"
	"github.com/netwatch-hq/netwatch/pkg/mcp"
	"github.com/netwatch-hq/netwatch/pkg/profile"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	configPath := flag.String("config", "", "Path to a YAML config file (mutually exclusive with -profile-db)")
	profileDBPath := flag.String("profile-db", "", "Path to a multi-deployment profile database")
	profileName := flag.String("profile", "", "Profile name to activate (default: the currently active profile)")
	flag.Parse()

	ctx := context.Background()

	cfg, networkID, err := loadConfig(ctx, *configPath, *profileDBPath, *profileName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	a, err := app.Build(log, cfg, networkID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire deployment")
	}

	server := mcp.NewServer(log, a.Dispatcher)

	log.Info().Msg("starting MCP stdio server")
	if err := server.ServeStdio(); err != nil {
		log.Fatal().Err(err).Msg("MCP server failed")
	}
}

func loadConfig(ctx context.Context, configPath, profileDBPath, profileName string) (config.Config, string, error) {
	if profileDBPath != "" {
		db, err := profile.Open(profileDBPath, "")
		if err != nil {
			return config.Config{}, "", err
		}
		if err := db.Migrate(ctx); err != nil {
			return config.Config{}, "", err
		}

		store := db.Profiles()
		var p *profile.Profile
		if profileName != "" {
			p, err = store.GetByName(ctx, profileName)
		} else {
			p, err = store.GetActive(ctx)
		}
		if err != nil {
			return config.Config{}, "", err
		}
		return p.Config, p.Name, nil
	}

	if configPath == "" {
		return config.Default(), "default", nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, "", err
	}
	return cfg, cfg.Router.Host, nil
}
