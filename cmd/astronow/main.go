package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/astronow/astronow/internal/api"
	"github.com/astronow/astronow/internal/config"
	"github.com/astronow/astronow/internal/genai"
	"github.com/astronow/astronow/internal/mood"
	"github.com/astronow/astronow/internal/pipeline"
	"github.com/astronow/astronow/internal/queue"
	"github.com/astronow/astronow/internal/scheduler"
	"github.com/astronow/astronow/internal/store"
	"github.com/astronow/astronow/internal/telegram"
	"github.com/astronow/astronow/internal/tracker"
	"github.com/astronow/astronow/internal/util"
)

// DefaultDBFileName is the default SQLite database filename inside the
// state directory.
const DefaultDBFileName = "astronow.db"

// Flags holds command line flag values.
type Flags struct {
	botToken  *string
	openaiKey *string
	dbDSN     *string
	stateDir  *string
	apiAddr   *string
	persona   *string
	debug     *bool
}

func main() {
	initializeLogger()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	flags := parseCommandLineFlags(cfg)

	if err := ensureStateDir(flags); err != nil {
		slog.Error("Failed to create state directory", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, flags); err != nil {
		slog.Error("AstroNow failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("AstroNow exited successfully")
}

// initializeLogger sets up structured logging with debug level.
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// parseCommandLineFlags parses command line arguments with environment defaults.
func parseCommandLineFlags(cfg config.Config) Flags {
	flags := Flags{
		botToken:  flag.String("bot-token", cfg.TelegramBotToken, "Telegram bot token (overrides $TELEGRAM_BOT_TOKEN)"),
		openaiKey: flag.String("openai-api-key", cfg.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		dbDSN:     flag.String("db-dsn", cfg.DatabaseDSN, "database DSN (overrides $DATABASE_URL)"),
		stateDir:  flag.String("state-dir", cfg.StateDir, "state directory for AstroNow data (overrides $ASTRONOW_STATE_DIR)"),
		apiAddr:   flag.String("api-addr", cfg.APIAddr, "API server address (overrides $API_ADDR)"),
		persona:   flag.String("persona-file", cfg.PersonaFile, "path to a persona prompt file (overrides $PERSONA_PROMPT_FILE)"),
		debug:     flag.Bool("telegram-debug", util.ParseBoolEnv("TELEGRAM_DEBUG", false), "log Telegram API requests (overrides $TELEGRAM_DEBUG)"),
	}
	flag.Parse()

	if *flags.dbDSN == "" {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", *flags.dbDSN)
	}
	return flags
}

// ensureStateDir creates the state directory when storage is file based.
func ensureStateDir(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return nil
	}
	dir := filepath.Dir(*flags.dbDSN)
	return os.MkdirAll(dir, 0755)
}

func buildStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

func loadPersona(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Failed to read persona file, using built-in persona", "path", path, "error", err)
		return ""
	}
	return string(data)
}

func run(cfg config.Config, flags Flags) error {
	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	llm, err := genai.NewClient(*flags.openaiKey)
	if err != nil {
		return err
	}

	tg, err := telegram.NewService(*flags.botToken, telegram.WithDebug(*flags.debug))
	if err != nil {
		return err
	}

	moods := mood.NewEngine(mood.WithStore(st))
	outbound := queue.NewQueue(tg)
	pipe := pipeline.New(st, tracker.New(st), moods, llm, outbound,
		pipeline.WithPersona(loadPersona(*flags.persona)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outbound.Start(ctx)
	tg.Start(ctx)

	sched := scheduler.NewScheduler()
	jobs := scheduler.NewJobs(st, outbound, moods, cfg.RetentionDays)
	if err := jobs.Register(sched, cfg.HoroscopeCron, cfg.EngagementCron, cfg.CleanupCron); err != nil {
		return err
	}

	apiServer := api.NewServer(*flags.apiAddr, outbound, moods)
	go apiServer.Start()

	slog.Info("AstroNow is up", "api_addr", *flags.apiAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case in, ok := <-tg.Incoming():
			if !ok {
				slog.Warn("Telegram update stream closed")
				return shutdown(cancel, tg, sched, outbound, pipe, moods, apiServer)
			}
			go func(in telegram.Incoming) {
				if _, err := pipe.HandleMessage(ctx, in.ChatID, in.Username, in.FirstName, in.Text); err != nil {
					slog.Error("Message handling failed", "chatID", in.ChatID, "error", err)
				}
			}(in)
		case sig := <-sigCh:
			slog.Info("Shutdown signal received", "signal", sig)
			return shutdown(cancel, tg, sched, outbound, pipe, moods, apiServer)
		}
	}
}

// shutdown stops intake first, drains in-flight work, then persists the
// mood snapshot so the personality survives the restart.
func shutdown(cancel context.CancelFunc, tg *telegram.Service, sched *scheduler.Scheduler, outbound *queue.Queue, pipe *pipeline.Pipeline, moods *mood.Engine, apiServer *api.Server) error {
	tg.Stop()
	sched.Stop()
	pipe.Wait()
	outbound.Stop()
	cancel()

	moods.Persist()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		slog.Error("API server shutdown failed", "error", err)
	}
	return nil
}
