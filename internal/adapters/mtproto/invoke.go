package mtproto

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tgerr"

	"tg-channel-speckit/internal/domain"
	"tg-channel-speckit/internal/infra/metrics"
)

// invoke выполняет один RPC с учётом лимита запросов. На FLOOD_WAIT запрос
// повторяется после паузы не более floodRetries раз; вызывающий код держит
// курсор страницы, поэтому повтор не дублирует уже отданные элементы.
func (c *Client) invoke(ctx context.Context, operation, target string, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.limiter.Take()
		start := time.Now()
		err := fn(ctx)
		metrics.ObserveNetworkRequest("mtproto", operation, target, start, err)
		if err == nil {
			return nil
		}
		wait, ok := tgerr.AsFloodWait(err)
		if !ok {
			return err
		}
		if attempt >= c.floodRetries {
			return domain.NewNetworkError(
				fmt.Sprintf("Rate limited on %s: gave up after %d retries", operation, attempt), err)
		}
		if c.floodMaxWait > 0 && wait > c.floodMaxWait {
			return domain.NewNetworkError(
				fmt.Sprintf("Rate limited on %s: requested wait %s exceeds %s", operation, wait, c.floodMaxWait), err)
		}
		metrics.ObserveFloodWait(operation, wait)
		c.log.Warn().
			Str("operation", operation).
			Str("target", target).
			Dur("wait", wait).
			Int("attempt", attempt+1).
			Msg("mtproto: flood wait")
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// classifyRPCError приводит ошибку RPC к таксономии выгрузки.
func classifyRPCError(err error) error {
	var typed *domain.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &typed):
		return typed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case auth.IsUnauthorized(err):
		return domain.NewAuthError("Session is no longer authorized", err)
	}
	if rpcErr, ok := tgerr.As(err); ok {
		return domain.NewLoaderError(fmt.Sprintf("Telegram API error: %s", rpcErr.Message), err)
	}
	return domain.NewNetworkError(fmt.Sprintf("Request failed: %v", err), err)
}
