package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/manavm/pixstudio/internal/autosave"
	"github.com/manavm/pixstudio/internal/coordinator"
	"github.com/manavm/pixstudio/internal/history"
	"github.com/manavm/pixstudio/internal/media"
	"github.com/manavm/pixstudio/internal/provider"
	"github.com/manavm/pixstudio/internal/provider/gemini"
	"github.com/manavm/pixstudio/internal/repl"
	"github.com/manavm/pixstudio/internal/state"
	"github.com/manavm/pixstudio/internal/storage"
	"github.com/manavm/pixstudio/internal/undo"
	"github.com/manavm/pixstudio/internal/usage"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagModel      string
	flagVideoModel string
	flagBaseURL    string
	flagAPIKey     string
	flagTimeout    int
)

type App struct {
	In         io.Reader
	Out        io.Writer
	Err        io.Writer
	GetEnv     func(string) string
	NewService func(cfg *provider.Config) (provider.GenerationService, error)
}

func DefaultApp() *App {
	return &App{
		In:     os.Stdin,
		Out:    os.Stdout,
		Err:    os.Stderr,
		GetEnv: os.Getenv,
		NewService: func(cfg *provider.Config) (provider.GenerationService, error) {
			return gemini.New(cfg)
		},
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Missing .env is fine; the shell environment still applies.
	_ = godotenv.Load()

	app := DefaultApp()
	rootCmd := newRootCmd(app)
	return rootCmd.Execute()
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pixstudio",
		Short: "Interactive studio for AI image and video generation",
		Long: `pixstudio is an interactive shell for creating, editing and combining
AI-generated images and videos.

Inside the shell, type 'help' for the command list. Sessions autosave;
an interrupted session is offered for restore on the next start.

Examples:
  pixstudio
  pixstudio --model gemini-2.5-flash-image
  GEMINI_API_KEY=... pixstudio`,
		Args:    cobra.NoArgs,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStudio(app)
		},
	}

	cmd.Flags().StringVarP(&flagModel, "model", "m", "", "image model to use")
	cmd.Flags().StringVar(&flagVideoModel, "video-model", "", "video model to use")
	cmd.Flags().StringVar(&flagBaseURL, "base-url", "", "API base URL override")
	cmd.Flags().StringVar(&flagAPIKey, "api-key", "", "API key (defaults to GEMINI_API_KEY)")
	cmd.Flags().IntVar(&flagTimeout, "timeout", 0, "per-request timeout in seconds")

	return cmd
}

func runStudio(app *App) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	apiKey := flagAPIKey
	if apiKey == "" {
		apiKey = app.GetEnv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("API key required: set GEMINI_API_KEY or use --api-key")
	}

	svc, err := app.NewService(&provider.Config{
		APIKey:     apiKey,
		BaseURL:    flagBaseURL,
		Model:      flagModel,
		VideoModel: flagVideoModel,
		TimeoutSec: flagTimeout,
	})
	if err != nil {
		return err
	}

	kv, err := storage.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open config storage: %w", err)
	}

	sessionState := state.NewStore()
	autosave.LoadPreferences(kv, sessionState)

	undoCtl := undo.NewController(sessionState, undo.DefaultLimit, autosave.NewStackMirror(kv))
	ledger := history.NewLedger()

	saved := autosave.New(sessionState, kv, autosave.DefaultInterval)
	go saved.Run(ctx)

	recorder, err := usage.NewRecorder(filepath.Join(kv.Dir(), "usage.db"))
	if err != nil {
		fmt.Fprintf(app.Err, "Warning: usage log unavailable: %v\n", err)
		recorder = nil
	} else {
		defer recorder.Close()
	}

	coord := coordinator.New(coordinator.Config{
		State:   sessionState,
		Undo:    undoCtl,
		Ledger:  ledger,
		Service: svc,
		Usage:   recorder,
		Model:   flagModel,
	})

	shell := repl.New(&repl.Config{
		In:          app.In,
		Out:         app.Out,
		Err:         app.Err,
		Coordinator: coord,
		State:       sessionState,
		Ledger:      ledger,
		Saver:       media.NewSaver(),
		Autosaver:   saved,
		Storage:     kv,
		Usage:       recorder,
	})

	err = shell.Run(ctx)

	// Persist the latest state before exit so nothing between ticks is
	// lost.
	_ = saved.Sync()
	return err
}
