package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"tg-channel-speckit/internal/domain"
)

// DefaultEnvFile локальный файл настроек, читается при наличии.
const DefaultEnvFile = ".env"

const credentialsHint = "Please create a .env file with your Telegram API credentials. " +
	"Get them from https://my.telegram.org"

// Хранилища MTProto-сессии.
const (
	SessionStoreFile     = "file"
	SessionStorePostgres = "postgres"
)

// AppConfig описывает конфигурацию выгрузчика.
type AppConfig struct {
	AppEnv   string `envconfig:"APP_ENV" default:"prod"`
	LogLevel string `envconfig:"LOG_LEVEL"`

	Telegram struct {
		// APIIDRaw проверяется вручную, чтобы отличать отсутствие от нечислового значения.
		APIIDRaw string `envconfig:"TELEGRAM_API_ID"`
		APIID    int    `ignored:"true"`
		APIHash  string `envconfig:"TELEGRAM_API_HASH"`
		Phone    string `envconfig:"TELEGRAM_PHONE"`
	} `envconfig:""`

	MTProto struct {
		SessionStore   string        `envconfig:"MTPROTO_SESSION_STORE" default:"file"`
		SessionFile    string        `envconfig:"MTPROTO_SESSION_FILE" default:".specify-for-tg-analysis/tg/session.json"`
		SessionName    string        `envconfig:"MTPROTO_SESSION_NAME" default:"default"`
		GlobalRPS      int           `envconfig:"MTPROTO_GLOBAL_RPS" default:"20"`
		FloodRetries   int           `envconfig:"MTPROTO_FLOOD_RETRIES" default:"5"`
		FloodMaxWait   time.Duration `envconfig:"MTPROTO_FLOOD_MAX_WAIT" default:"5m"`
		ResolveTTL     time.Duration `envconfig:"RESOLVE_CACHE_TTL" default:"24h"`
		ConnectTimeout time.Duration `envconfig:"MTPROTO_CONNECT_TIMEOUT" default:"2m"`
	} `envconfig:""`

	OutputDir  string `envconfig:"OUTPUT_DIR" default:".specify-for-tg-analysis/memory/channels"`
	StatusAddr string `envconfig:"STATUS_ADDR"`

	PGDSN     string `envconfig:"PG_DSN"`
	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`
	Queues    struct {
		Exports string `envconfig:"EXPORT_EVENTS_QUEUE" default:"channel_exports"`
	} `envconfig:""`

	Notify struct {
		BotToken string `envconfig:"TG_BOT_TOKEN"`
		ChatID   int64  `envconfig:"TG_NOTIFY_CHAT_ID"`
	} `envconfig:""`
}

// Load читает необязательный файл настроек и окружение. Значения из
// окружения имеют приоритет над файлом.
func Load(envFile string) (AppConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return AppConfig{}, domain.NewConfigError(fmt.Sprintf("cannot read %s: %v", envFile, err))
		}
	}
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, domain.NewConfigError(err.Error())
	}
	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	raw := strings.TrimSpace(c.Telegram.APIIDRaw)
	if raw == "" {
		return domain.NewConfigError("TELEGRAM_API_ID is not set. " + credentialsHint)
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return domain.NewConfigError(fmt.Sprintf("TELEGRAM_API_ID must be numeric, got: %s", raw))
	}
	c.Telegram.APIID = id

	if strings.TrimSpace(c.Telegram.APIHash) == "" {
		return domain.NewConfigError("TELEGRAM_API_HASH is not set. " + credentialsHint)
	}

	switch c.MTProto.SessionStore {
	case SessionStoreFile:
		if c.MTProto.SessionFile == "" {
			return domain.NewConfigError("MTPROTO_SESSION_FILE must not be empty")
		}
	case SessionStorePostgres:
		if c.PGDSN == "" {
			return domain.NewConfigError("PG_DSN is required when MTPROTO_SESSION_STORE=postgres")
		}
	default:
		return domain.NewConfigError(fmt.Sprintf("unknown MTPROTO_SESSION_STORE %q (expected file or postgres)", c.MTProto.SessionStore))
	}

	if c.MTProto.GlobalRPS < 0 {
		return domain.NewConfigError("MTPROTO_GLOBAL_RPS must not be negative")
	}
	if c.MTProto.FloodRetries < 0 {
		return domain.NewConfigError("MTPROTO_FLOOD_RETRIES must not be negative")
	}
	if c.Notify.BotToken != "" && c.Notify.ChatID == 0 {
		return domain.NewConfigError("TG_NOTIFY_CHAT_ID is required when TG_BOT_TOKEN is set")
	}
	return nil
}
