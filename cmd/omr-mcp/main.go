package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ironsheep/omr-mcp/internal/config"
	"github.com/ironsheep/omr-mcp/internal/ocr"
	"github.com/ironsheep/omr-mcp/internal/omr"
	"github.com/ironsheep/omr-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := os.Getenv("OMR_MCP_CONFIG")

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; {
		case arg == "--version" || arg == "-v" || arg == "version":
			fmt.Printf("omr-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			fmt.Printf("  Backend:    %s\n", backendName)
			return
		case arg == "--help" || arg == "-h" || arg == "help":
			printUsage()
			return
		case arg == "--config" || arg == "-c":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--config requires a path")
				os.Exit(2)
			}
			i++
			configPath = args[i]
		case strings.HasPrefix(arg, "--config="):
			configPath = strings.TrimPrefix(arg, "--config=")
		default:
			fmt.Fprintf(os.Stderr, "unknown option %q\n", arg)
			os.Exit(2)
		}
	}

	// Logs go to stderr; stdout is for the MCP protocol.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel()}))
	logger.Debug("starting omr-mcp", "version", Version, "build_time", BuildTime, "commit", GitCommit)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("invalid configuration", "path", configPath, "error", err)
		os.Exit(1)
	}

	prims, err := newPrimitives(cfg, logger)
	if err != nil {
		logger.Error("vision backend unavailable", "error", err)
		os.Exit(1)
	}

	opts := []omr.Option{omr.WithLogger(logger)}
	if cfg.OCR.Enabled {
		if err := ocr.Available(); err != nil {
			logger.Warn("text recognition disabled", "error", err)
		} else {
			opts = append(opts, omr.WithTextReader(ocr.NewReader(cfg.OCR.Language)))
		}
	}

	scanner, err := omr.NewScanner(cfg, prims, opts...)
	if err != nil {
		logger.Error("failed to create scanner", "error", err)
		os.Exit(1)
	}
	logger.Info("scanner ready",
		"backend", scanner.Backend(),
		"dictionary", cfg.MarkerDictionary,
		"canonical", fmt.Sprintf("%dx%d", cfg.Canonical.Width, cfg.Canonical.Height),
		"ocr", scanner.CanReadText())

	srv := server.New(cfg, scanner,
		server.WithLogger(logger),
		server.WithVersion(Version))
	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func logLevel() slog.Level {
	switch strings.ToLower(os.Getenv("OMR_MCP_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printUsage() {
	fmt.Println("omr-mcp - MCP server for bubble-sheet scanning")
	fmt.Println()
	fmt.Println("Usage: omr-mcp [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config, -c PATH   YAML configuration file")
	fmt.Println("  --version, -v       Print version information")
	fmt.Println("  --help, -h          Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  OMR_MCP_CONFIG=PATH          Configuration file (overridden by --config)")
	fmt.Println("  OMR_MCP_LOG_LEVEL=debug      Log level: debug, info, warn, error")
	fmt.Println()
	fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
	fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
}
