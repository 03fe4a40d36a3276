package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"tg-channel-speckit/internal/adapters/mtproto"
	"tg-channel-speckit/internal/adapters/repo"
	"tg-channel-speckit/internal/domain"
	"tg-channel-speckit/internal/infra/config"
	"tg-channel-speckit/internal/infra/db"
	applog "tg-channel-speckit/internal/infra/log"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var (
		filePath    string
		sessionName string
		envFile     string
	)
	fs := flag.NewFlagSet("mtproto-session-importer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&filePath, "file", "", "Path to the session to import (gotd JSON, Telethon string, account JSON or rows dump)")
	fs.StringVar(&sessionName, "name", "", "Session name for MTPROTO_SESSION_STORE=postgres (defaults to MTPROTO_SESSION_NAME)")
	fs.StringVar(&envFile, "env-file", config.DefaultEnvFile, "Optional settings file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if filePath == "" {
		fmt.Fprintln(stderr, "mtproto-importer: path to session file is required (-file)")
		return 1
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		fmt.Fprintln(stderr, domain.Classify(err).Render())
		return 1
	}
	logger := applog.NewLogger(cfg.AppEnv, cfg.LogLevel, stderr)
	if sessionName == "" {
		sessionName = cfg.MTProto.SessionName
	}

	raw, err := os.ReadFile(filePath)
	if err != nil {
		logger.Error().Err(err).Str("file", filePath).Msg("mtproto-importer: failed to read session file")
		return 1
	}
	data, format, err := mtproto.ConvertSession(raw)
	if err != nil {
		logger.Error().Err(err).Msg("mtproto-importer: unsupported MTProto session format")
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	target, err := storeSession(ctx, cfg, sessionName, data, logger)
	if err != nil {
		logger.Error().Err(err).Str("store", cfg.MTProto.SessionStore).Msg("mtproto-importer: failed to store session")
		return 1
	}

	if format != mtproto.SessionFormatGotd {
		fmt.Fprintf(stdout, "Session was converted from %s to gotd JSON format before storing\n", format)
	}
	fmt.Fprintf(stdout, "Stored MTProto session (%d bytes) in %s\n", len(data), target)
	return 0
}

func storeSession(ctx context.Context, cfg config.AppConfig, name string, data []byte, logger zerolog.Logger) (string, error) {
	switch cfg.MTProto.SessionStore {
	case config.SessionStorePostgres:
		pool, err := db.Connect(ctx, cfg.PGDSN)
		if err != nil {
			return "", fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		pg := repo.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return "", err
		}
		if err := mtproto.NewSessionDB(pg, name).StoreSession(ctx, data); err != nil {
			return "", err
		}
		logger.Debug().Str("name", name).Msg("mtproto-importer: session stored in postgres")
		return fmt.Sprintf("database as %q", name), nil
	default:
		storage, err := mtproto.NewFileSession(cfg.MTProto.SessionFile)
		if err != nil {
			return "", err
		}
		if err := storage.StoreSession(ctx, data); err != nil {
			return "", err
		}
		return cfg.MTProto.SessionFile, nil
	}
}
