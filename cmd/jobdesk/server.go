package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
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
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/jobdesk/internal/api"
	"github.com/kalambet/jobdesk/internal/assistant"
	"github.com/kalambet/jobdesk/internal/config"
	"github.com/kalambet/jobdesk/internal/jobs"
	"github.com/kalambet/jobdesk/internal/notify"
	"github.com/kalambet/jobdesk/internal/ollama"
	"github.com/kalambet/jobdesk/internal/resume"
	"github.com/kalambet/jobdesk/internal/settings"
	"github.com/kalambet/jobdesk/internal/storage"
	"github.com/kalambet/jobdesk/internal/tools"
	"github.com/kalambet/jobdesk/internal/worker"
)

const shutdownTimeout = 5 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the jobdesk daemon (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mcpStdio, _ := cmd.Flags().GetBool("mcp-stdio")
		return runServer(mcpStdio)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running jobdesk daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show jobdesk system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp-stdio", false, "also serve MCP over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "jobdesk.pid")
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

// settingsAlerter forwards alerts only while the user keeps desktop alerts on.
type settingsAlerter struct {
	settings *settings.Manager
	next     notify.Alerter
}

func (a settingsAlerter) Alert(title, body string) error {
	if !a.settings.Get().DesktopAlerts {
		return nil
	}
	return a.next.Alert(title, body)
}

func runServer(mcpStdio bool) error {
	fmt.Fprintf(os.Stderr, "jobdesk version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// With MCP on stdio, stdout belongs to the protocol; logs stay on stderr.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	apiToken, err := config.GetAPIToken(config.NewKeychain(cfg.Storage.DataDir))
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("jobdesk is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("jobdesk is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The tracker is usable without a model; AI features report their own
	// errors until Ollama comes up.
	llm := ollama.New(cfg.Ollama.BaseURL)
	if err := ollama.EnsureReady(ctx, llm, os.Stderr, cfg.Ollama.ChatModel, cfg.ToolModel()); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		printWarning("AI features unavailable: %v", err)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	jobStore := jobs.NewStore(store)
	settingsMgr := settings.NewManager(store)
	resumeMgr := resume.NewManager(store)

	var engineOpts []notify.Option
	if cfg.Notify.DesktopAlerts {
		engineOpts = append(engineOpts, notify.WithAlerter(settingsAlerter{settings: settingsMgr, next: notify.NewCommandAlerter()}))
	}
	engine := notify.NewEngine(store, engineOpts...)

	chat := assistant.New(llm, cfg.Ollama.ChatModel, jobStore, engine, store, assistant.Context{
		DisplayName: func() string { return settingsMgr.DisplayName("") },
		Resume:      resumeMgr.Summary,
	})
	toolSvc := tools.New(llm, cfg.ToolModel(), resumeMgr)

	scheduler := notify.NewScheduler(engine, jobStore, cfg.Notify.ScanInterval)
	artifactWorker := worker.NewWorker(store, toolSvc, jobStore, engine, cfg.Worker.PollInterval)

	handler := api.NewAppHandler(api.AppDeps{
		Jobs:          jobStore,
		Notifications: engine,
		Assistant:     chat,
		Resume:        resumeMgr,
		Settings:      settingsMgr,
		Tools:         toolSvc,
		Store:         store,
		Token:         apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scheduler.Run(gctx)
		return nil
	})
	g.Go(func() error {
		artifactWorker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "jobdesk listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if mcpStdio {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Jobs:          jobStore,
			Editor:        chat,
			Notifications: engine,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	return g.Wait()
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
		printError("jobdesk is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop jobdesk (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to jobdesk (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)

	running := false
	if resp, err := client.Get(serverURL + "/health"); err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	llm := ollama.New(cfg.Ollama.BaseURL)
	if llm.IsRunning(ctx) {
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	} else {
		printStatus("Ollama", "not running")
	}
	printStatus("Chat model", "%s", cfg.Ollama.ChatModel)
	printStatus("Tool model", "%s", cfg.ToolModel())

	if running {
		if c, err := newAPIClient(); err == nil {
			var list []json.RawMessage
			if c.call(ctx, http.MethodGet, "/jobs", nil, &list) == nil {
				printStatus("Tracked jobs", "%d", len(list))
			}
			var feed struct {
				Unread int `json:"unread"`
			}
			if c.call(ctx, http.MethodGet, "/notifications", nil, &feed) == nil {
				printStatus("Unread notifications", "%d", feed.Unread)
			}
			var tasks []taskRow
			if c.call(ctx, http.MethodGet, "/tasks?limit=100", nil, &tasks) == nil {
				printStatus("Pending tasks", "%d", countPending(tasks))
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countPending(tasks []taskRow) int {
	n := 0
	for _, t := range tasks {
		if t.Status == storage.TaskStatusPending || t.Status == storage.TaskStatusRunning {
			n++
		}
	}
	return n
}
