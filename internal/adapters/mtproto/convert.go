package mtproto

import (
	"time"

	"github.com/gotd/td/tg"

	"tg-channel-speckit/internal/domain"
)

// postFromMessage переводит сообщение канала в пост. Служебные сообщения
// сохраняются с пустым текстом, удалённые (MessageEmpty) пропускаются.
func postFromMessage(msg tg.MessageClass) (domain.Post, bool) {
	switch m := msg.(type) {
	case *tg.Message:
		post := domain.Post{
			ID:       int64(m.ID),
			Text:     m.Message,
			Date:     unixTimestamp(m.Date),
			Comments: []domain.Comment{},
		}
		if views, ok := m.GetViews(); ok {
			post.Views = &views
		}
		return post, true
	case *tg.MessageService:
		return domain.Post{
			ID:       int64(m.ID),
			Date:     unixTimestamp(m.Date),
			Comments: []domain.Comment{},
		}, true
	default:
		return domain.Post{}, false
	}
}

// commentFromMessage переводит ответ из группы обсуждения в комментарий.
func commentFromMessage(msg tg.MessageClass, users map[int64]*tg.User) (domain.Comment, bool) {
	switch m := msg.(type) {
	case *tg.Message:
		from, _ := m.GetFromID()
		return domain.Comment{
			ID:     int64(m.ID),
			Text:   m.Message,
			Date:   unixTimestamp(m.Date),
			Author: authorFromPeer(from, users),
		}, true
	case *tg.MessageService:
		from, _ := m.GetFromID()
		return domain.Comment{
			ID:     int64(m.ID),
			Date:   unixTimestamp(m.Date),
			Author: authorFromPeer(from, users),
		}, true
	default:
		return domain.Comment{}, false
	}
}

// authorFromPeer: пользователь становится известным автором, всё остальное
// (анонимный админ, канал, группа) получает заглушку.
func authorFromPeer(from tg.PeerClass, users map[int64]*tg.User) domain.Author {
	peer, ok := from.(*tg.PeerUser)
	if !ok {
		return domain.AnonymousAuthor()
	}
	user, ok := users[peer.UserID]
	if !ok {
		return domain.NewKnownAuthor(peer.UserID, "", "", "")
	}
	return domain.NewKnownAuthor(user.ID, user.Username, user.FirstName, user.LastName)
}

func unixTimestamp(sec int) domain.Timestamp {
	return domain.NewTimestamp(time.Unix(int64(sec), 0))
}
