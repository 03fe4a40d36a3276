package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// FormatVersion версия формата выгрузки.
const FormatVersion = "1.0"

// AnonymousName подставляется вместо имени, когда отправитель не пользователь.
const AnonymousName = "Anonymous"

// timestampLayout соответствует ISO-8601 с явным смещением +00:00.
const timestampLayout = "2006-01-02T15:04:05.999999-07:00"

// Timestamp хранит момент времени и сериализуется в UTC с явным смещением.
type Timestamp time.Time

// NewTimestamp приводит время к UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.UTC())
}

// Time возвращает время в UTC.
func (t Timestamp) Time() time.Time {
	return time.Time(t).UTC()
}

// String форматирует время как ISO-8601.
func (t Timestamp) String() string {
	return t.Time().Format(timestampLayout)
}

// MarshalJSON реализует json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON реализует json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	*t = NewTimestamp(parsed)
	return nil
}

// Author описывает автора комментария.
type Author struct {
	UserID    int64   `json:"user_id"`
	Username  *string `json:"username"`
	FirstName string  `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// NewKnownAuthor строит автора из данных пользователя. Пустые username и
// last_name считаются отсутствующими.
func NewKnownAuthor(userID int64, username, firstName, lastName string) Author {
	return Author{
		UserID:    userID,
		Username:  optionalString(username),
		FirstName: firstName,
		LastName:  optionalString(lastName),
	}
}

// AnonymousAuthor используется для анонимных администраторов и каналов.
func AnonymousAuthor() Author {
	return Author{FirstName: AnonymousName}
}

// IsAnonymous сообщает, что автор синтезирован без данных пользователя.
func (a Author) IsAnonymous() bool {
	return a.UserID == 0 && a.Username == nil && a.FirstName == AnonymousName
}

// Comment ответ на пост канала.
type Comment struct {
	ID     int64     `json:"id"`
	Text   string    `json:"text"`
	Date   Timestamp `json:"date"`
	Author Author    `json:"author"`
}

// Post сообщение канала вместе с комментариями.
type Post struct {
	ID       int64     `json:"id"`
	Text     string    `json:"text"`
	Date     Timestamp `json:"date"`
	Views    *int      `json:"views"`
	Comments []Comment `json:"comments"`
}

// WithComments возвращает копию поста с присоединёнными комментариями.
func (p Post) WithComments(comments []Comment) Post {
	if comments == nil {
		comments = []Comment{}
	}
	p.Comments = comments
	return p
}

// MarshalJSON гарантирует, что comments всегда массив.
func (p Post) MarshalJSON() ([]byte, error) {
	type plain Post
	if p.Comments == nil {
		p.Comments = []Comment{}
	}
	return marshalUnescaped(plain(p))
}

// Channel публичный канал Telegram.
type Channel struct {
	ID         int64   `json:"id"`
	AccessHash int64   `json:"-"`
	Username   *string `json:"username"`
	Title      string  `json:"title"`
	Posts      []Post  `json:"posts"`
}

// NewChannel создаёт канал без постов.
func NewChannel(id, accessHash int64, username, title string) Channel {
	return Channel{
		ID:         id,
		AccessHash: accessHash,
		Username:   optionalString(username),
		Title:      title,
		Posts:      []Post{},
	}
}

// Handle возвращает username канала или пустую строку.
func (c Channel) Handle() string {
	if c.Username == nil {
		return ""
	}
	return *c.Username
}

// WithPosts возвращает копию канала с присоединёнными постами.
func (c Channel) WithPosts(posts []Post) Channel {
	if posts == nil {
		posts = []Post{}
	}
	c.Posts = posts
	return c
}

// MarshalJSON гарантирует, что posts всегда массив.
func (c Channel) MarshalJSON() ([]byte, error) {
	type plain Channel
	if c.Posts == nil {
		c.Posts = []Post{}
	}
	return marshalUnescaped(plain(c))
}

// ExportStatus статус выгрузки.
type ExportStatus string

const (
	ExportStatusComplete ExportStatus = "complete"
	ExportStatusPartial  ExportStatus = "partial"
)

// OutputFile конверт выгрузки с метаданными.
type OutputFile struct {
	Version       string       `json:"version"`
	Status        ExportStatus `json:"status"`
	ExportedAt    Timestamp    `json:"exported_at"`
	PostsCount    int          `json:"posts_count"`
	CommentsCount int          `json:"comments_count"`
	Channel       Channel      `json:"channel"`
}

// NewOutputFile собирает конверт и пересчитывает счётчики по содержимому канала.
func NewOutputFile(channel Channel, status ExportStatus, exportedAt time.Time) OutputFile {
	comments := 0
	for _, post := range channel.Posts {
		comments += len(post.Comments)
	}
	return OutputFile{
		Version:       FormatVersion,
		Status:        status,
		ExportedAt:    NewTimestamp(exportedAt),
		PostsCount:    len(channel.Posts),
		CommentsCount: comments,
		Channel:       channel,
	}
}

// marshalUnescaped кодирует v без экранирования <, > и &. Внешний encoder
// не может отменить экранирование, уже сделанное вложенным MarshalJSON.
func marshalUnescaped(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
