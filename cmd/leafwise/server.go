package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/leafwise/internal/api"
	"github.com/kalambet/leafwise/internal/config"
	"github.com/kalambet/leafwise/internal/engine"
	"github.com/kalambet/leafwise/internal/identify"
	"github.com/kalambet/leafwise/internal/localstore"
	"github.com/kalambet/leafwise/internal/plantnet"
	"github.com/kalambet/leafwise/internal/reminder"
	"github.com/kalambet/leafwise/internal/scan"
	"github.com/kalambet/leafwise/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the leafwise server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mcp, _ := cmd.Flags().GetBool("mcp")
		return runServer(mcp)
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP over stdin/stdout")
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running leafwise server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show leafwise system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "leafwise.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// openBackend opens the SQLite store, falling back to an in-memory backend
// when the data directory is unusable. The returned close func is never nil.
func openBackend(cfg config.Config, logger *slog.Logger) (localstore.Backend, func()) {
	store, err := storage.Open(cfg.Storage.DataDir, storage.WithMaxValueBytes(cfg.Storage.MaxValueBytes))
	if err != nil {
		logger.Warn("storage unavailable, collection will not persist", "dir", cfg.Storage.DataDir, "error", err)
		return localstore.NewMemoryBackend(), func() {}
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing storage", "error", err)
		}
	}
}

// newGateway builds the identification service from config. Missing keys
// leave the matching source disabled rather than failing startup.
func newGateway(ctx context.Context, cfg config.Config, logger *slog.Logger) (*identify.Service, error) {
	eng, err := engine.Detect(engine.DetectConfig{
		Backend:         cfg.Prompt.Backend,
		OllamaBaseURL:   cfg.Prompt.OllamaURL,
		AnthropicAPIKey: cfg.Prompt.AnthropicAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("detecting prompt backend: %w", err)
	}

	if oe, ok := eng.(*engine.OllamaEngine); ok {
		if err := oe.EnsureReady(ctx, cfg.PromptModel(), os.Stderr); err != nil {
			logger.Warn("ollama not ready, prompt features disabled", "url", cfg.Prompt.OllamaURL, "error", err)
			eng = nil
		}
	}
	if eng == nil {
		logger.Info("no prompt backend, care details and diagnosis unavailable")
	}

	rec := plantnet.NewClient(cfg.PlantNet.APIKey,
		plantnet.WithBaseURL(cfg.PlantNet.BaseURL),
		plantnet.WithProject(cfg.PlantNet.Project),
		plantnet.WithRequestsPerMinute(cfg.PlantNet.RequestsPerMinute),
	)
	if !rec.Configured() {
		logger.Info("no PlantNet API key, identification uses the prompt backend only")
	}

	return identify.NewService(rec, eng, identify.Config{
		Model:         cfg.PromptModel(),
		MinConfidence: cfg.Identify.MinConfidence,
		CacheTTL:      cfg.Identify.CacheTTL,
	}, logger), nil
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "leafwise version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	logger.Info("API bearer token available")

	// Refuse to start twice on the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("leafwise is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("leafwise is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, closeBackend := openBackend(cfg, logger)
	defer closeBackend()

	store := localstore.New(backend,
		localstore.WithLogger(logger),
		localstore.WithSignalDir(filepath.Join(cfg.Storage.DataDir, "signals")),
	)
	go func() {
		if err := store.Watch(ctx); err != nil {
			logger.Warn("cross-process sync disabled", "error", err)
		}
	}()

	history := scan.NewHistory(store, scan.WithHistoryLogger(logger))
	loaded := history.Load()
	logger.Info("collection loaded", "scans", len(loaded))

	gateway, err := newGateway(ctx, cfg, logger)
	if err != nil {
		return err
	}

	hub := api.NewHub(logger)
	unfollow := hub.Follow(history)
	defer unfollow()

	worker := reminder.NewWorker(history, cfg.Reminders.CheckInterval,
		reminder.WithLogger(logger),
		reminder.WithNotifier(func(_ context.Context, s scan.Scan) {
			hub.PublishReminder(s)
		}),
	)
	go worker.Run(ctx)

	appHandler := api.NewAppHandler(api.AppDeps{
		History: history,
		Gateway: gateway,
		Events:  hub,
		Token:   apiToken,
		Logger:  logger,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			History: history,
			Gateway: gateway,
			Version: version,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("MCP stdio server error", "error", err)
			}
		}()
		logger.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "leafwise listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Open event streams only end when the base context is cancelled.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("leafwise is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop leafwise (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to leafwise (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		var health struct {
			Status string `json:"status"`
		}
		json.NewDecoder(resp.Body).Decode(&health)
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d (%s)", cfg.Server.Port, health.Status)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("PlantNet", "%s", configuredLabel(cfg.PlantNet.APIKey != ""))
	switch cfg.Prompt.Backend {
	case engine.BackendOllama, "":
		ollamaResp, err := client.Get(cfg.Prompt.OllamaURL + "/api/version")
		if err != nil {
			printStatus("Prompt backend", "ollama not running at %s", cfg.Prompt.OllamaURL)
		} else {
			ollamaResp.Body.Close()
			printStatus("Prompt backend", "ollama at %s (%s)", cfg.Prompt.OllamaURL, cfg.PromptModel())
		}
	case engine.BackendAnthropic:
		printStatus("Prompt backend", "anthropic, %s (%s)", configuredLabel(cfg.Prompt.AnthropicAPIKey != ""), cfg.PromptModel())
	default:
		printStatus("Prompt backend", "%s", cfg.Prompt.Backend)
	}

	if running {
		token, tokenErr := config.GetAPIToken(config.NewKeychain())
		if tokenErr == nil {
			ac := &apiClient{baseURL: serverURL, token: token, httpClient: client}
			if counts, err := collectionCounts(context.Background(), ac); err == nil {
				printStatus("Plants", "%d (%d favourites, %d need water)", counts.total, counts.favorites, counts.due)
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func configuredLabel(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

type counts struct {
	total, favorites, due int
}

func collectionCounts(ctx context.Context, c *apiClient) (counts, error) {
	var out counts

	resp, err := c.get(ctx, "/scans")
	if err != nil {
		return out, err
	}
	var list []scan.Scan
	if err := decodeJSON(resp, &list); err != nil {
		return out, err
	}
	out.total = len(list)
	out.favorites = len(scan.Favorites(list))

	resp, err = c.get(ctx, "/reminders/due")
	if err != nil {
		return out, err
	}
	var due []json.RawMessage
	if err := decodeJSON(resp, &due); err != nil {
		return out, err
	}
	out.due = len(due)
	return out, nil
}
