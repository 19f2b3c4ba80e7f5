package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	serveradapter "github.com/hylla/tavla/internal/adapters/server"
	servercommon "github.com/hylla/tavla/internal/adapters/server/common"
	"github.com/hylla/tavla/internal/adapters/storage/sqlite"
	"github.com/hylla/tavla/internal/app"
	"github.com/hylla/tavla/internal/config"
	"github.com/hylla/tavla/internal/domain"
	"github.com/hylla/tavla/internal/engine"
	"github.com/hylla/tavla/internal/platform"
	"github.com/hylla/tavla/internal/tui"
)

// version is stamped at build time.
var version = "dev"

// program is the TUI program seam, replaceable in tests.
type program interface {
	Run() (tea.Model, error)
}

var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// rootFlags carries the persistent flags shared by every subcommand.
type rootFlags struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
}

func main() {
	if err := execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// execute builds the command tree and runs it through fang.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	flags := &rootFlags{}
	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("TAVLA_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	defaultAppName := "tavla"
	if envApp := strings.TrimSpace(os.Getenv("TAVLA_APP_NAME")); envApp != "" {
		defaultAppName = envApp
	}

	var boardName string
	root := &cobra.Command{
		Use:           "tavla",
		Short:         "Infinite-canvas whiteboard in the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), flags, boardName, stderr)
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config TOML")
	root.PersistentFlags().StringVar(&flags.dbPath, "db", "", "path to sqlite database")
	root.PersistentFlags().StringVar(&flags.appName, "app", defaultAppName, "application name for config/data path resolution")
	root.PersistentFlags().BoolVar(&flags.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")
	root.Flags().StringVar(&boardName, "board", "", "board to open (name or id, default: most recent)")

	root.AddCommand(
		newServeCmd(flags, stderr),
		newExportCmd(flags, stdout, stderr),
		newImportCmd(flags, stderr),
		newPathsCmd(flags, stdout),
	)

	return fang.Execute(ctx, root, fang.WithVersion(version))
}

// newPathsCmd prints the resolved config/data locations.
func newPathsCmd(flags *rootFlags, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config and data paths",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			paths, err := platform.DefaultPathsWithOptions(platform.Options{
				AppName: flags.appName,
				DevMode: flags.devMode,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout, "app: %s\n", flags.appName)
			_, _ = fmt.Fprintf(stdout, "dev_mode: %t\n", flags.devMode)
			_, _ = fmt.Fprintf(stdout, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(stdout, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(stdout, "db: %s\n", paths.DBPath)
			return nil
		},
	}
}

// newServeCmd exposes the board store over HTTP REST and MCP.
func newServeCmd(flags *rootFlags, stderr io.Writer) *cobra.Command {
	var (
		httpBind    string
		apiEndpoint string
		mcpEndpoint string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and MCP endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(flags, stderr, "serve")
			if err != nil {
				return err
			}
			defer rt.Close(stderr)

			bind := httpBind
			if bind == "" {
				bind = rt.cfg.Server.Bind
			}
			svc, err := servercommon.NewBoardService(rt.repo, uuid.NewString, nil, rt.logger.Sink())
			if err != nil {
				return err
			}
			rt.logger.Info("serve starting", "bind", bind, "api", apiEndpoint, "mcp", mcpEndpoint)
			return serveradapter.Run(cmd.Context(), serveradapter.Config{
				HTTPBind:      bind,
				APIEndpoint:   apiEndpoint,
				MCPEndpoint:   mcpEndpoint,
				ServerName:    flags.appName,
				ServerVersion: version,
			}, svc)
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "", "HTTP listen address (default from config)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "/api/v1", "HTTP API base endpoint")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "/mcp", "MCP streamable HTTP endpoint")
	return cmd
}

// newExportCmd writes a snapshot of every board to JSON.
func newExportCmd(flags *rootFlags, stdout, stderr io.Writer) *cobra.Command {
	var (
		outPath         string
		includeArchived bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export boards and cards as snapshot JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(flags, stderr, "export")
			if err != nil {
				return err
			}
			defer rt.Close(stderr)
			return runExport(cmd.Context(), rt, outPath, includeArchived, stdout)
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	cmd.Flags().BoolVar(&includeArchived, "include-archived", true, "include archived boards")
	return cmd
}

// newImportCmd loads a snapshot JSON file into the store.
func newImportCmd(flags *rootFlags, stderr io.Writer) *cobra.Command {
	var inPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a snapshot JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(inPath) == "" {
				return errors.New("--in is required")
			}
			rt, err := openRuntime(flags, stderr, "import")
			if err != nil {
				return err
			}
			defer rt.Close(stderr)
			return runImport(cmd.Context(), rt, inPath)
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input snapshot JSON file")
	return cmd
}

// runtime bundles the resolved configuration and open collaborators for one
// command invocation.
type runtime struct {
	appName string
	cfg     config.Config
	logger  *runtimeLogger
	repo    *sqlite.Repository
}

// openRuntime resolves paths and config, configures logging, and opens the
// sqlite repository.
func openRuntime(flags *rootFlags, stderr io.Writer, command string) (*runtime, error) {
	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: flags.appName,
		DevMode: flags.devMode,
	})
	if err != nil {
		return nil, err
	}

	configPath := flags.configPath
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("TAVLA_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := flags.dbPath
	dbOverridden := strings.TrimSpace(dbPath) != ""
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("TAVLA_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}

	logger, err := newRuntimeLogger(stderr, flags.appName, flags.devMode, cfg.Logging, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	if command == "tui" {
		// Keep TUI rendering clean: runtime logs stay in the dev-file sink
		// while the board is active.
		logger.SetConsoleEnabled(false)
	}

	logger.Info("startup configuration resolved", "app", flags.appName, "dev_mode", flags.devMode, "command", command)
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "db_path", cfg.Database.Path)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		if closeErr := logger.Close(); closeErr != nil {
			_, _ = fmt.Fprintf(stderr, "warning: close runtime log sink: %v\n", closeErr)
		}
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	logger.Info("sqlite repository ready", "db_path", cfg.Database.Path, "migrations", "ensured")

	return &runtime{
		appName: flags.appName,
		cfg:     cfg,
		logger:  logger,
		repo:    repo,
	}, nil
}

// Close releases the repository and log sinks.
func (rt *runtime) Close(stderr io.Writer) {
	if err := rt.repo.Close(); err != nil {
		rt.logger.Warn("sqlite close failed", "err", err)
	}
	if err := rt.logger.Close(); err != nil && rt.logger.shouldLogToSink(rt.logger.consoleSink) {
		_, _ = fmt.Fprintf(stderr, "warning: close runtime log sink: %v\n", err)
	}
}

// runTUI opens a board and runs the canvas program loop.
func runTUI(ctx context.Context, flags *rootFlags, boardName string, stderr io.Writer) error {
	rt, err := openRuntime(flags, stderr, "tui")
	if err != nil {
		return err
	}
	defer rt.Close(stderr)

	board, err := resolveBoard(ctx, rt.repo, boardName)
	if err != nil {
		return err
	}
	rt.logger.Info("board resolved", "board_id", board.ID, "board_name", board.Name)

	eng := engine.New(rt.repo, board.ID, rt.cfg.EngineConfig(), rt.logger.Sink(), nil, nil)
	defer eng.Close()
	if err := eng.Load(ctx); err != nil {
		return fmt.Errorf("load board %q: %w", board.ID, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := eng.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			rt.logger.Error("engine subscription stopped", "err", err)
		}
	}()

	m := tui.NewModel(eng, board.Name, rt.cfg.Keys)
	rt.logger.Info("starting tui program loop")
	if _, err := programFactory(m).Run(); err != nil {
		rt.logger.Error("tui program terminated with error", "err", err)
		return fmt.Errorf("run tui program: %w", err)
	}
	rt.logger.Info("command flow complete", "command", "tui")
	return nil
}

// resolveBoard finds the requested board, defaulting to the most recently
// updated one. An empty store gets a starter board.
func resolveBoard(ctx context.Context, repo *sqlite.Repository, wanted string) (domain.Board, error) {
	boards, err := repo.ListBoards(ctx, false)
	if err != nil {
		return domain.Board{}, fmt.Errorf("list boards: %w", err)
	}

	wanted = strings.TrimSpace(wanted)
	if wanted != "" {
		for _, b := range boards {
			if b.ID == wanted || strings.EqualFold(b.Name, wanted) {
				return b, nil
			}
		}
		return domain.Board{}, fmt.Errorf("board %q not found", wanted)
	}

	if len(boards) > 0 {
		latest := boards[0]
		for _, b := range boards[1:] {
			if b.UpdatedAt.After(latest.UpdatedAt) {
				latest = b
			}
		}
		return latest, nil
	}

	board, err := domain.NewBoard(uuid.NewString(), "Main", time.Now())
	if err != nil {
		return domain.Board{}, err
	}
	if err := repo.CreateBoard(ctx, board); err != nil {
		return domain.Board{}, fmt.Errorf("create starter board: %w", err)
	}
	return board, nil
}

// runExport writes the snapshot JSON to outPath or stdout.
func runExport(ctx context.Context, rt *runtime, outPath string, includeArchived bool, stdout io.Writer) error {
	svc, err := app.NewService(rt.repo, nil)
	if err != nil {
		return err
	}
	snap, err := svc.ExportSnapshot(ctx, includeArchived)
	if err != nil {
		return fmt.Errorf("export snapshot: %w", err)
	}
	encoded, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot json: %w", err)
	}
	encoded = append(encoded, '\n')

	if outPath == "-" {
		if _, err := stdout.Write(encoded); err != nil {
			return fmt.Errorf("write snapshot to stdout: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create export output dir: %w", err)
	}
	if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
		return fmt.Errorf("write export file: %w", err)
	}
	rt.logger.Info("snapshot exported", "path", outPath, "boards", len(snap.Boards), "cards", len(snap.Cards))
	return nil
}

// runImport loads a snapshot JSON file into the repository.
func runImport(ctx context.Context, rt *runtime, inPath string) error {
	content, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("read import file: %w", err)
	}
	var snap app.Snapshot
	if err := json.Unmarshal(content, &snap); err != nil {
		return fmt.Errorf("decode snapshot json: %w", err)
	}
	svc, err := app.NewService(rt.repo, nil)
	if err != nil {
		return err
	}
	if err := svc.ImportSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	rt.logger.Info("snapshot imported", "path", inPath, "boards", len(snap.Boards), "cards", len(snap.Cards))
	return nil
}

// parseBoolEnv parses a boolean environment variable, reporting presence.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
