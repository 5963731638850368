// Scrapinium watch - headless live-update client for a Scrapinium server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/scrapinium/liveclient/internal/client"
	"github.com/scrapinium/liveclient/internal/config"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	showHelp := flag.Bool("help", false, "show usage")
	runCheck := flag.Bool("check", false, "validate config and test connectivity")
	configPath := flag.String("config", "", "path to YAML config file")

	// Short flags
	flag.BoolVar(showVersion, "v", false, "print version and exit")
	flag.BoolVar(showHelp, "h", false, "show usage")

	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Printf("scrapinium-watch %s\n", client.Version)
		os.Exit(0)
	}

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	if *runCheck {
		os.Exit(runConfigCheck(*configPath))
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().
		Timestamp().
		Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	switch cfg.LogLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().
		Str("version", client.Version).
		Str("url", cfg.ServerURL).
		Msg("Scrapinium watch starting")

	c := client.New(cfg, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("received signal")
		c.Shutdown()
	}()

	if err := c.Run(); err != nil {
		log.Fatal().Err(err).Msg("client failed")
	}
}

func printUsage() {
	fmt.Printf(`Usage: scrapinium-watch [options]

Scrapinium watch %s - mirrors server-side scraping state over a push channel.

Options:
  -v, --version   Print version and exit
  -h, --help      Print this help and exit
  --check         Validate config and test connectivity
  --config PATH   Load settings from a YAML file

Environment variables:
  SCRAPINIUM_URL            Server WebSocket URL (required)
  SCRAPINIUM_API_URL        Server HTTP base URL (derived from URL if unset)
  SCRAPINIUM_TOKEN          Bearer token
  SCRAPINIUM_PING_INTERVAL  Keepalive ping period in seconds (default: 30)
  SCRAPINIUM_PONG_TIMEOUT   Dead-connection window in seconds (default: 45)
  SCRAPINIUM_BACKOFF_BASE   Reconnect backoff base in seconds (default: 1)
  SCRAPINIUM_BACKOFF_MAX    Reconnect backoff cap in seconds (default: 15)
  SCRAPINIUM_MAX_RETRIES    Attempts before degraded mode (default: 5)
  SCRAPINIUM_POLL_INTERVAL  Degraded-mode poll period in seconds (default: 10)
  SCRAPINIUM_LIST_LIMIT     Collection fetch limit (default: 50)
  SCRAPINIUM_LOG_LEVEL      Log level: debug, info, warn, error
`, client.Version)
}

func runConfigCheck(configPath string) int {
	fmt.Println("Checking configuration...")
	fmt.Println()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("❌ Config error: %v\n", err)
		return 1
	}

	fmt.Println("✓ Config OK")
	fmt.Printf("  Server:       %s\n", cfg.ServerURL)
	fmt.Printf("  API:          %s\n", cfg.APIURL)
	fmt.Printf("  Max retries:  %d\n", cfg.MaxReconnectAttempts)
	fmt.Printf("  Poll every:   %s\n", cfg.PollInterval)
	fmt.Println()

	fmt.Print("Testing server connectivity... ")

	log := zerolog.Nop()
	api := client.NewAPI(cfg.APIURL, cfg.Token, "config-check", log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	if err := api.Health(ctx); err != nil {
		fmt.Printf("❌ Failed\n")
		fmt.Printf("  Error: %v\n", err)
		return 1
	}

	fmt.Printf("✓ OK (latency: %dms)\n", time.Since(start).Milliseconds())
	return 0
}
