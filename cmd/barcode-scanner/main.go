package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/Vuyo-dev28/barcodeScannerExcel/internal/decoding"
	"github.com/Vuyo-dev28/barcodeScannerExcel/internal/ledger"
	"github.com/Vuyo-dev28/barcodeScannerExcel/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("barcode-scanner")
	var (
		port         = fs.IntLong("port", 8080, "HTTP server port")
		silenceMs    = fs.IntLong("silence-ms", 300, "Max gap between characters of one scan, in milliseconds")
		quietMs      = fs.IntLong("quiet-ms", 250, "Quiet period after which a scan without terminator is flushed, in milliseconds")
		exportDir    = fs.StringLong("export-dir", "./exports", "Directory for XLSX export artifacts")
		exportLayout = fs.StringLong("export-layout", "serial-timestamp", "Export columns: 'serial-timestamp' or 'count-serial'")
		decoderType  = fs.StringLong("decoder", "zxing", "Camera decoder: 'zxing', 'gemini', 'ollama' or 'off'")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel  = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL    = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel  = fs.StringLong("ollama-model", "llava", "Ollama vision model name (e.g., llava, qwen2-vl)")
		authUser     = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass     = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BARCODE_SCANNER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	layout, err := ledger.ParseLayout(*exportLayout)
	if err != nil {
		slog.Error("Invalid export layout", "error", err)
		os.Exit(1)
	}

	// Initialize camera decoder based on type
	var decoder decoding.Decoder
	switch *decoderType {
	case "zxing":
		slog.Info("Initializing ZXing decoder...")
		decoder = decoding.NewZXing()
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini decoder...", "model", *geminiModel)
		decoder, err = decoding.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama decoder...", "url", *ollamaURL, "model", *ollamaModel)
		decoder, err = decoding.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	case "off":
		slog.Info("Camera decoding disabled; keyboard scanning only")
	default:
		slog.Error("Invalid decoder type", "type", *decoderType, "valid", "zxing, gemini, ollama or off")
		os.Exit(1)
	}
	if decoder != nil {
		defer decoder.Close()
	}

	// Initialize export storage
	slog.Info("Initializing export storage...", "dir", *exportDir)
	store, err := ledger.NewLocalStorage(*exportDir)
	if err != nil {
		slog.Error("Failed to initialize export storage", "error", err)
		os.Exit(1)
	}

	// Initialize service
	cfg := scanning.Config{
		SilenceThreshold: time.Duration(*silenceMs) * time.Millisecond,
		QuietTimeout:     time.Duration(*quietMs) * time.Millisecond,
	}
	service := ledger.NewService(cfg, decoder, store, layout)
	defer service.Close()

	// Initialize server
	basicAuth := ledger.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := ledger.NewServer(service, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr),
		"silence_threshold", cfg.SilenceThreshold, "quiet_timeout", cfg.QuietTimeout)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
