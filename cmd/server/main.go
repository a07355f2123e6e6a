// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	apiconnect "github.com/osa030/playdeck/internal/api/connect"
	"github.com/osa030/playdeck/internal/app/engine"
	"github.com/osa030/playdeck/internal/app/playback"
	"github.com/osa030/playdeck/internal/app/resolver"
	"github.com/osa030/playdeck/internal/infra/audio"
	"github.com/osa030/playdeck/internal/infra/catalog"
	"github.com/osa030/playdeck/internal/infra/config"
	"github.com/osa030/playdeck/internal/infra/logger"
	"github.com/osa030/playdeck/internal/infra/spotify"
)

var (
	app        = kingpin.New("playdeck-server", "playdeck music player server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// check-config command
	checkCmd = app.Command("check-config", "Validate the config file and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{Output: "stdout", Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	closeLog, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closeLog()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == checkCmd.FullCommand() {
		fmt.Printf("%s: ok (%d resolvers, audio output %s)\n", *configPath, len(cfg.Resolvers.Entries), cfg.Audio.Output)
		return
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %+v", err)
		closeLog()
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	songs, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return errors.Wrap(err, "failed to open catalog")
	}
	defer songs.Close()
	zlog.Info().Msgf("Catalog opened: path=%s", songs.Path())

	deps := resolver.Deps{Songs: songs}
	if cfg.HasResolver(config.ResolverSpotify) {
		spotifyClient, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return errors.Wrap(err, "failed to create Spotify client")
		}
		deps.Spotify = spotifyClient
	}

	chain, err := resolver.NewChainFromConfig(cfg, deps)
	if err != nil {
		return errors.Wrap(err, "failed to create resolver chain")
	}

	factory, err := audio.NewFactoryFromConfig(cfg.Audio, &http.Client{})
	if err != nil {
		return errors.Wrap(err, "failed to create audio output")
	}

	eng, err := engine.New(engine.Deps{
		Playback: playback.Config{
			SkipIncrement:  cfg.Playback.SkipIncrement(),
			SampleInterval: cfg.Playback.SampleInterval(),
			Autoplay:       cfg.Playback.AutoplayEnabled(),
			InitialVolume:  cfg.Playback.Volume(),
			LoadTimeout:    cfg.Playback.LoadTimeout(),
		},
		Resolver: chain,
		Factory:  factory,
		Catalog:  songs,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create engine")
	}
	if err := eng.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start engine")
	}

	if cfg.Control.Token == "" {
		zlog.Warn().Msg("control.token is empty, mutating procedures are open")
	}
	opts := connect.WithInterceptors(apiconnect.NewControlAuthInterceptor(cfg.Control.Token))

	mux := http.NewServeMux()
	mux.Handle(apiconnect.NewPlayerService(eng).Handler(opts))
	mux.Handle(apiconnect.NewQueueService(eng).Handler(opts))
	mux.Handle(apiconnect.NewLibraryService(eng, songs).Handler(opts))

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server error")
		}
		return nil
	})
	g.Go(func() error {
		executeHooks(cfg.Server.Hooks.OnStarted, "on_started")
		<-gctx.Done()
		zlog.Info().Msg("Shutting down...")

		// Close the engine first to end active notification streams
		eng.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zlog.Error().Msgf("Failed to shutdown server: %v", err)
		}
		return nil
	})

	err = g.Wait()
	zlog.Info().Msg("Server stopped")
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")
	return err
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
