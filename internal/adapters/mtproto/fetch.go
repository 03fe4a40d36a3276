package mtproto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"tg-channel-speckit/internal/domain"
	"tg-channel-speckit/internal/usecase/channels"
)

type cachedChannel struct {
	ID         int64  `json:"id"`
	AccessHash int64  `json:"access_hash"`
	Username   string `json:"username"`
	Title      string `json:"title"`
}

// ResolveChannel находит канал по @username или ссылке t.me.
func (c *Client) ResolveChannel(ctx context.Context, identifier string) (domain.Channel, error) {
	name, err := channels.ParseAlias(identifier)
	if err != nil {
		return domain.Channel{}, domain.NewAccessError(identifier, fmt.Sprintf("Invalid channel identifier: %s", identifier), err)
	}
	if ch, ok := c.cachedChannel(ctx, name); ok {
		return ch, nil
	}

	var resolved *tg.ContactsResolvedPeer
	err = c.invoke(ctx, "contacts.resolveUsername", name, func(ctx context.Context) error {
		res, err := c.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: name})
		resolved = res
		return err
	})
	switch {
	case err == nil:
	case tgerr.Is(err, "CHANNEL_PRIVATE", "CHANNEL_INVALID"):
		return domain.Channel{}, domain.NewAccessError(name, "Channel is private", err)
	case tgerr.Is(err, "USERNAME_NOT_OCCUPIED", "USERNAME_INVALID"):
		return domain.Channel{}, domain.NewAccessError(name, fmt.Sprintf("Channel not found: %s", name), err)
	default:
		return domain.Channel{}, classifyRPCError(err)
	}

	peer, ok := resolved.Peer.(*tg.PeerChannel)
	if !ok {
		return domain.Channel{}, domain.NewAccessError(name, "Not a channel", nil)
	}
	for _, chat := range resolved.Chats {
		switch ch := chat.(type) {
		case *tg.Channel:
			if ch.ID != peer.ChannelID {
				continue
			}
			channel := domain.NewChannel(ch.ID, ch.AccessHash, ch.Username, ch.Title)
			c.storeChannel(ctx, name, channel)
			return channel, nil
		case *tg.ChannelForbidden:
			if ch.ID == peer.ChannelID {
				return domain.Channel{}, domain.NewAccessError(name, "Channel is private", nil)
			}
		}
	}
	return domain.Channel{}, domain.NewAccessError(name, fmt.Sprintf("Channel not found: %s", name), nil)
}

// FetchPosts отдаёт посты канала от новых к старым. limit <= 0 выгружает все.
func (c *Client) FetchPosts(ctx context.Context, channel domain.Channel, limit int) iter.Seq2[domain.Post, error] {
	return func(yield func(domain.Post, error) bool) {
		target := channelTarget(channel)
		peer := inputPeer(channel)
		emitted := 0
		pages := c.pages(ctx, "messages.getHistory", target, func(ctx context.Context, offsetID, batch int) (tg.MessagesMessagesClass, error) {
			return c.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
				Peer:     peer,
				OffsetID: offsetID,
				Limit:    batch,
			})
		}, func() int {
			if limit <= 0 {
				return c.batchSize
			}
			return min(c.batchSize, limit-emitted)
		})
		for page, err := range pages {
			if err != nil {
				yield(domain.Post{}, c.channelError(ctx, channel, err))
				return
			}
			for _, msg := range page.messages {
				post, ok := postFromMessage(msg)
				if !ok {
					continue
				}
				if !yield(post, nil) {
					return
				}
				emitted++
				if limit > 0 && emitted >= limit {
					return
				}
			}
		}
	}
}

// FetchComments отдаёт ответы на пост из связанной группы обсуждения.
// Пост без обсуждения даёт пустую последовательность.
func (c *Client) FetchComments(ctx context.Context, channel domain.Channel, postID int64) iter.Seq2[domain.Comment, error] {
	return func(yield func(domain.Comment, error) bool) {
		target := channelTarget(channel)
		peer := inputPeer(channel)
		pages := c.pages(ctx, "messages.getReplies", target, func(ctx context.Context, offsetID, batch int) (tg.MessagesMessagesClass, error) {
			return c.api.MessagesGetReplies(ctx, &tg.MessagesGetRepliesRequest{
				Peer:     peer,
				MsgID:    int(postID),
				OffsetID: offsetID,
				Limit:    batch,
			})
		}, func() int { return c.batchSize })
		for page, err := range pages {
			if err != nil {
				if tgerr.Is(err, "MSG_ID_INVALID") {
					c.log.Debug().Int64("post", postID).Msg("mtproto: post has no discussion thread")
					return
				}
				yield(domain.Comment{}, c.channelError(ctx, channel, err))
				return
			}
			for _, msg := range page.messages {
				comment, ok := commentFromMessage(msg, page.users)
				if !ok {
					continue
				}
				if !yield(comment, nil) {
					return
				}
			}
		}
	}
}

type messagePage struct {
	messages []tg.MessageClass
	users    map[int64]*tg.User
	// last страница заведомо последняя.
	last bool
}

type pageFunc func(ctx context.Context, offsetID, batch int) (tg.MessagesMessagesClass, error)

// pages листает историю по offset_id. Курсор сдвигается только после
// успешного ответа, поэтому повтор после FLOOD_WAIT запрашивает ту же страницу.
func (c *Client) pages(ctx context.Context, operation, target string, fetch pageFunc, batchSize func() int) iter.Seq2[messagePage, error] {
	return func(yield func(messagePage, error) bool) {
		offsetID := 0
		for {
			batch := batchSize()
			if batch <= 0 {
				return
			}
			var res tg.MessagesMessagesClass
			err := c.invoke(ctx, operation, target, func(ctx context.Context) error {
				r, err := fetch(ctx, offsetID, batch)
				res = r
				return err
			})
			if err != nil {
				yield(messagePage{}, err)
				return
			}
			page, err := unpackMessages(res)
			if err != nil {
				yield(messagePage{}, err)
				return
			}
			if len(page.messages) == 0 {
				return
			}
			next := page.messages[len(page.messages)-1].GetID()
			if offsetID != 0 && next >= offsetID {
				return
			}
			offsetID = next
			if !yield(page, nil) {
				return
			}
			if page.last {
				return
			}
		}
	}
}

func unpackMessages(res tg.MessagesMessagesClass) (messagePage, error) {
	var (
		page  messagePage
		users []tg.UserClass
	)
	switch r := res.(type) {
	case *tg.MessagesMessages:
		page.messages, users, page.last = r.Messages, r.Users, true
	case *tg.MessagesMessagesSlice:
		page.messages, users = r.Messages, r.Users
	case *tg.MessagesChannelMessages:
		page.messages, users = r.Messages, r.Users
	case *tg.MessagesMessagesNotModified:
		page.last = true
	case nil:
		return messagePage{}, errors.New("empty messages response")
	default:
		return messagePage{}, fmt.Errorf("unexpected messages response %T", res)
	}
	page.users = make(map[int64]*tg.User, len(users))
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			page.users[user.ID] = user
		}
	}
	return page, nil
}

func inputPeer(channel domain.Channel) tg.InputPeerClass {
	return &tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}
}

func channelTarget(channel domain.Channel) string {
	if handle := channel.Handle(); handle != "" {
		return handle
	}
	return fmt.Sprintf("%d", channel.ID)
}

// channelError переводит ошибку выборки из канала. Отказ по access_hash
// сбрасывает запись кэша, чтобы следующий резолв пошёл в Telegram.
func (c *Client) channelError(ctx context.Context, channel domain.Channel, err error) error {
	if !tgerr.Is(err, "CHANNEL_INVALID", "CHANNEL_PRIVATE") {
		return classifyRPCError(err)
	}
	if c.cache != nil && channel.Handle() != "" {
		if derr := c.cache.Delete(context.WithoutCancel(ctx), c.resolveCacheKey(channel.Handle())); derr != nil {
			c.log.Warn().Err(derr).Str("channel", channel.Handle()).Msg("mtproto: resolve cache evict failed")
		}
	}
	return domain.NewAccessError(channelTarget(channel), "Channel is private", err)
}

func (c *Client) resolveCacheKey(name string) string {
	return "resolve:" + c.cacheScope + ":" + strings.ToLower(name)
}

func (c *Client) cachedChannel(ctx context.Context, name string) (domain.Channel, bool) {
	if c.cache == nil {
		return domain.Channel{}, false
	}
	data, err := c.cache.Get(ctx, c.resolveCacheKey(name))
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			c.log.Warn().Err(err).Str("channel", name).Msg("mtproto: resolve cache read failed")
		}
		return domain.Channel{}, false
	}
	var cached cachedChannel
	if err := json.Unmarshal(data, &cached); err != nil || cached.ID == 0 {
		return domain.Channel{}, false
	}
	c.log.Debug().Str("channel", name).Msg("mtproto: resolve cache hit")
	return domain.NewChannel(cached.ID, cached.AccessHash, cached.Username, cached.Title), true
}

func (c *Client) storeChannel(ctx context.Context, name string, channel domain.Channel) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(cachedChannel{
		ID:         channel.ID,
		AccessHash: channel.AccessHash,
		Username:   channel.Handle(),
		Title:      channel.Title,
	})
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, c.resolveCacheKey(name), data, c.cacheTTL); err != nil {
		c.log.Warn().Err(err).Str("channel", name).Msg("mtproto: resolve cache write failed")
	}
}
