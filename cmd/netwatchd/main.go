// Command netwatchd is the long-lived netwatch daemon: it wires up every
// collaborator via pkg/app, serves ActionDispatcher over HTTP, and answers
// SIGHUP by reloading the knowledge base from disk without disturbing live
// transports, and SIGINT/SIGTERM by draining in-flight work before exiting.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/netwatch-hq/netwatch/pkg/api"
	"github.com/netwatch-hq/netwatch/pkg/app"
	"github.com/netwatch-hq/netwatch/pkg/config"
	"github.com/netwatch-hq/netwatch/pkg/profile"
)

const shutdownGracePeriod = 15 * time.Second

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	configPath := flag.String("config", "", "Path to a YAML config file (mutually exclusive with -profile-db)")
	profileDBPath := flag.String("profile-db", "", "Path to a multi-deployment profile database")
	profileName := flag.String("profile", "", "Profile name to activate (default: the currently active profile)")
	addr := flag.String("addr", ":8090", "HTTP listen address (ignored when a profile supplies its own)")
	flag.Parse()

	ctx := context.Background()

	cfg, listenAddr, networkID, err := loadConfig(ctx, *configPath, *profileDBPath, *profileName, *addr)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	a, err := app.Build(log, cfg, networkID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire deployment")
	}

	router := api.NewRouter(log, a.Dispatcher)

	go func() {
		log.Info().Str("addr", listenAddr).Msg("starting action API")
		if err := router.Run(listenAddr); err != nil {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			log.Info().Msg("SIGHUP received, reloading knowledge base")
			if err := a.KB.Reload(); err != nil {
				log.Error().Err(err).Msg("knowledge base reload failed, keeping in-memory state")
			}
			continue
		}

		log.Info().Str("signal", sig.String()).Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)

		if err := router.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error shutting down API server")
		}
		if err := a.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error during collaborator shutdown")
		}

		cancel()
		os.Exit(0)
	}
}

// loadConfig resolves the effective config.Config, HTTP listen address, and
// network identifier (used to namespace the knowledge base file) from
// either a flat YAML file or a named profile in a multi-deployment
// database, matching cmd/api/main.go's bootstrap-then-load pattern in the
// single-deployment case and extending it for the profile case.
func loadConfig(ctx context.Context, configPath, profileDBPath, profileName, defaultAddr string) (config.Config, string, string, error) {
	if profileDBPath != "" {
		db, err := profile.Open(profileDBPath, "")
		if err != nil {
			return config.Config{}, "", "", err
		}
		if err := db.Migrate(ctx); err != nil {
			return config.Config{}, "", "", err
		}

		store := db.Profiles()
		var p *profile.Profile
		if profileName != "" {
			p, err = store.GetByName(ctx, profileName)
		} else {
			p, err = store.GetActive(ctx)
		}
		if err != nil {
			return config.Config{}, "", "", err
		}

		return p.Config, p.ListenAddr, p.Name, nil
	}

	if configPath == "" {
		return config.Default(), defaultAddr, "default", nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, "", "", err
	}
	return cfg, defaultAddr, cfg.Router.Host, nil
}
