package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"wxbridge/internal/api"
	"wxbridge/internal/auth"
	"wxbridge/internal/config"
	"wxbridge/internal/cxone"
	"wxbridge/internal/events"
	"wxbridge/internal/log"
	"wxbridge/internal/transport"
	"wxbridge/internal/tui/watch"
	"wxbridge/internal/webhook"
	"wxbridge/internal/wechat"
)

const version = "0.1.0"

const defaultConfigPath = "wxbridge.yaml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		os.Exit(runSystemNoun(args))
	case "config":
		os.Exit(runConfigNoun(args))

	// --- ROOT ALIASES ---
	case "start":
		os.Exit(runStart(args))
	case "watch":
		os.Exit(runWatch(args))
	case "version":
		fmt.Printf("wxbridge version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`wxbridge - WeChat / CXone message bridge

Usage:
  wxbridge <noun> <action> [flags]

Core Resources (Nouns):
  system    Bridge lifecycle and health
  config    Bridge configuration and integrity

System Commands:
  system start      Start the bridge in foreground
  system watch      Live terminal dashboard for a running bridge

Config Commands:
  config lock       Authorize current state (update integrity hash)
  config check      Validate syntax, credentials, and integrity

General:
  version           Show version information
  help              Show this help message

Use 'wxbridge <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printSystemWatchHelp()
			return 0
		}
		return runWatch(actionArgs)
	case "help":
		printSystemNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}

	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "help":
		printConfigNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: wxbridge system <action>")
	fmt.Fprintln(w, "Actions: start, watch")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: wxbridge config <action> [flags]")
	fmt.Fprintln(w, "Actions: lock, check")
}

func printSystemStartHelp() {
	fmt.Println("Usage: wxbridge system start [--config PATH]")
	fmt.Println("Start both bridge listeners in the foreground.")
}

func printSystemWatchHelp() {
	fmt.Println("Usage: wxbridge system watch [--config PATH] [--api URL]")
	fmt.Println("Attach a live dashboard to a running bridge.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: wxbridge config lock [--config PATH] [--dry-run]")
	fmt.Println("Authorize current configuration state by regenerating the integrity hash.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: wxbridge config check [--config PATH] [--json]")
	fmt.Println("Validate configuration syntax, credentials, and integrity.")
}

// --- ACTION IMPLEMENTATIONS ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	if err := config.VerifyChecksum(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Config integrity check failed: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("wxbridge starting", "version", version, "config", *configPath)

	hub := events.NewHub(256)

	onStateChange := func(service string) transport.StateChangeFunc {
		return func(from, to transport.State, failures int) {
			logger.Warn("circuit breaker state change",
				"service", service,
				"from", from,
				"to", to,
				"failures", failures,
			)
			hub.Publish("breaker.state_change", map[string]any{
				"service":  service,
				"from":     string(from),
				"to":       string(to),
				"failures": failures,
			})
		}
	}

	transportOpts := func(service string) transport.Options {
		return transport.Options{
			Timeout:          cfg.HTTP.Timeout,
			MaxAttempts:      cfg.HTTP.MaxRetries,
			BreakerThreshold: cfg.HTTP.BreakerThreshold,
			BreakerCoolDown:  cfg.HTTP.BreakerCoolDown,
			Jitter:           true,
			OnStateChange:    onStateChange(service),
		}
	}

	wechatHTTP := transport.New("wechat", cfg.WeChat.APIBaseURL, transportOpts("wechat"), log.WithComponent("transport"))
	cxoneHTTP := transport.New("cxone", cfg.CXone.BaseURL, transportOpts("cxone"), log.WithComponent("transport"))

	sender := wechat.NewSender(cfg.WeChat.AppID, cfg.WeChat.AppSecret, wechatHTTP, log.WithComponent("wechat"))
	poster := cxone.NewPoster(cfg.CXone.ChannelID, cfg.CXone.BearerToken, cxoneHTTP, log.WithComponent("cxone"))

	var crypto *wechat.Crypto
	if cfg.WeChat.EncodingAESKey != "" {
		crypto, err = wechat.NewCrypto(cfg.WeChat.Token, cfg.WeChat.EncodingAESKey, cfg.WeChat.AppID)
		if err != nil {
			logger.Error("invalid encoding AES key", "error", err)
			return 1
		}
		logger.Info("webhook encryption enabled")
	}

	issuer := auth.NewIssuer(cfg.OAuth.JWTSecret)

	apiServer := api.New(api.Config{
		Listen:            cfg.API.Listen,
		ClientID:          cfg.OAuth.ClientID,
		ClientSecret:      cfg.OAuth.ClientSecret,
		RequestsPerMinute: cfg.API.RateLimit.RequestsPerMinute,
		Burst:             cfg.API.RateLimit.Burst,
		Version:           version,
	}, sender, issuer, hub, map[string]api.BreakerStater{
		"wechat": sender,
		"cxone":  poster,
	}, log.WithComponent("api"))

	webhookServer := webhook.New(webhook.Config{
		Listen:      cfg.Webhook.Listen,
		Token:       cfg.WeChat.Token,
		MaxBodySize: cfg.Webhook.MaxBodySize,
	}, crypto, poster, hub, log.WithComponent("webhook"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 2)

	go func() {
		if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("api: %w", err)
		}
	}()

	go func() {
		if err := webhookServer.Start(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("webhook: %w", err)
		}
	}()

	logger.Info("wxbridge running (press Ctrl+C to stop)",
		"api_listen", cfg.API.Listen,
		"webhook_listen", cfg.Webhook.Listen,
	)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("wxbridge stopped")
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	apiURL := fs.String("api", "", "Bridge API base URL (default derived from config)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	url := *apiURL
	if url == "" {
		url = "http://" + cfg.API.Listen
	}

	model := watch.New(url, cfg.OAuth.ClientID, cfg.OAuth.ClientSecret)
	p := tea.NewProgram(model)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Watch failed: %v\n", err)
		return 1
	}
	return 0
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	type checkResult struct {
		Valid  bool     `json:"valid"`
		Errors []string `json:"errors,omitempty"`
	}
	result := checkResult{Valid: true}

	if _, err := config.Load(*configPath); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
	}
	if err := config.VerifyChecksum(*configPath); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
	}

	if *jsonOut {
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
	} else {
		if result.Valid {
			fmt.Println("Configuration check PASSED.")
		} else {
			fmt.Println("Configuration check FAILED:")
			for _, e := range result.Errors {
				fmt.Printf("  - %s\n", e)
			}
		}
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	dryRun := fs.Bool("dry-run", false, "Compute the hash without writing the manifest")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if _, err := config.Load(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Refusing to lock invalid config: %v\n", err)
		return 1
	}

	if *dryRun {
		hash, err := config.ComputeHash(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to hash config: %v\n", err)
			return 1
		}
		fmt.Printf("Dry-run: would write %s\n", config.ChecksumPath(*configPath))
		fmt.Printf("  HASH %s\n", hash)
		return 0
	}

	hash, err := config.WriteChecksum(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}

	fmt.Printf("Locked configuration: %s\n", config.ChecksumPath(*configPath))
	fmt.Printf("  HASH %s\n", hash)
	return 0
}
