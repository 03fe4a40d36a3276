package mtproto

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"
	"go.uber.org/ratelimit"

	"tg-channel-speckit/internal/domain"
)

const (
	defaultBatchSize    = 100
	defaultFloodRetries = 5
)

// API подмножество tg.Client, которое использует выгрузка.
type API interface {
	ContactsResolveUsername(ctx context.Context, request *tg.ContactsResolveUsernameRequest) (*tg.ContactsResolvedPeer, error)
	MessagesGetHistory(ctx context.Context, request *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error)
	MessagesGetReplies(ctx context.Context, request *tg.MessagesGetRepliesRequest) (tg.MessagesMessagesClass, error)
}

var _ API = (*tg.Client)(nil)

// Options настройки MTProto клиента.
type Options struct {
	APIID   int
	APIHash string
	Storage session.Storage
	// Authenticator используется, если сохранённой сессии нет.
	Authenticator auth.UserAuthenticator

	RPS          int
	FloodRetries int
	FloodMaxWait time.Duration

	Cache    domain.Cache
	CacheTTL time.Duration
	// CacheScope отделяет записи разных аккаунтов: access_hash действителен
	// только для сессии, которая его получила.
	CacheScope string

	Logger zerolog.Logger
}

// Client реализует domain.ChannelSource и domain.Session через gotd.
type Client struct {
	tg            *telegram.Client
	api           API
	storage       session.Storage
	authenticator auth.UserAuthenticator

	limiter      ratelimit.Limiter
	floodRetries int
	floodMaxWait time.Duration
	batchSize    int
	sleep        func(ctx context.Context, d time.Duration) error

	cache      domain.Cache
	cacheTTL   time.Duration
	cacheScope string

	log zerolog.Logger

	mu   sync.Mutex
	stop context.CancelFunc
	done chan struct{}
}

var (
	_ domain.ChannelSource = (*Client)(nil)
	_ domain.Session       = (*Client)(nil)
)

// NewClient создаёт MTProto клиента. Соединение открывается в Connect.
func NewClient(opts Options) (*Client, error) {
	if opts.APIID == 0 || opts.APIHash == "" {
		return nil, errors.New("mtproto: api id and hash are required")
	}
	if opts.Storage == nil {
		return nil, errors.New("mtproto: session storage is required")
	}
	tgClient := telegram.NewClient(opts.APIID, opts.APIHash, telegram.Options{SessionStorage: opts.Storage})
	c := newClient(tgClient.API(), opts)
	c.tg = tgClient
	return c, nil
}

func newClient(api API, opts Options) *Client {
	limiter := ratelimit.NewUnlimited()
	if opts.RPS > 0 {
		limiter = ratelimit.New(opts.RPS)
	}
	retries := opts.FloodRetries
	if retries < 0 {
		retries = defaultFloodRetries
	}
	return &Client{
		api:           api,
		storage:       opts.Storage,
		authenticator: opts.Authenticator,
		limiter:       limiter,
		floodRetries:  retries,
		floodMaxWait:  opts.FloodMaxWait,
		batchSize:     defaultBatchSize,
		sleep:         sleepContext,
		cache:         opts.Cache,
		cacheTTL:      opts.CacheTTL,
		cacheScope:    opts.CacheScope,
		log:           opts.Logger,
	}
}

// Connect открывает соединение и авторизуется. Если сохранённой сессии нет,
// запускается интерактивный вход; отклонённая сохранённая сессия даёт AuthError.
func (c *Client) Connect(ctx context.Context) error {
	if c.tg == nil {
		return errors.New("mtproto: client has no transport")
	}
	c.mu.Lock()
	if c.stop != nil {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.stop = cancel
	c.done = done
	c.mu.Unlock()

	hadSession := c.hasStoredSession(ctx)
	ready := make(chan error, 2)

	go func() {
		defer close(done)
		err := c.tg.Run(runCtx, func(ctx context.Context) error {
			if err := c.authorize(ctx, hadSession); err != nil {
				return err
			}
			ready <- nil
			<-ctx.Done()
			return nil
		})
		if err == nil {
			err = errors.New("connection closed")
		}
		select {
		case ready <- err:
		default:
		}
	}()

	select {
	case err := <-ready:
		if err != nil {
			_ = c.Disconnect()
			return classifyConnectError(err)
		}
		c.log.Debug().Bool("restored_session", hadSession).Msg("mtproto: connected")
		return nil
	case <-ctx.Done():
		_ = c.Disconnect()
		return ctx.Err()
	}
}

// Disconnect закрывает соединение. Повторный вызов ничего не делает.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()
	if stop == nil {
		return nil
	}
	stop()
	<-done
	c.log.Debug().Msg("mtproto: disconnected")
	return nil
}

func (c *Client) hasStoredSession(ctx context.Context) bool {
	data, err := c.storage.LoadSession(ctx)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			c.log.Warn().Err(err).Msg("mtproto: cannot read stored session")
		}
		return false
	}
	return len(data) > 0
}

func (c *Client) authorize(ctx context.Context, hadSession bool) error {
	status, err := c.tg.Auth().Status(ctx)
	if err != nil {
		return err
	}
	if status.Authorized {
		return nil
	}
	if hadSession {
		return domain.NewAuthError("Session expired. Please re-authenticate.", nil)
	}
	if c.authenticator == nil {
		return domain.NewAuthError("Not authorized and interactive login is unavailable", nil)
	}
	flow := auth.NewFlow(c.authenticator, auth.SendCodeOptions{})
	if err := flow.Run(ctx, c.tg.Auth()); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return domain.NewAuthError(fmt.Sprintf("Interactive login failed: %v", err), err)
	}
	return nil
}

func classifyConnectError(err error) error {
	var typed *domain.Error
	switch {
	case errors.As(err, &typed):
		return typed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case auth.IsUnauthorized(err):
		return domain.NewAuthError("Session expired. Please re-authenticate.", err)
	default:
		return domain.NewNetworkError(fmt.Sprintf("Failed to connect: %v", err), err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
