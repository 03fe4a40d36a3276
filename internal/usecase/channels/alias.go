package channels

import (
	"errors"
	"regexp"
	"strings"
)

// ErrAliasInvalid возвращается для идентификатора, который не может быть именем канала.
var ErrAliasInvalid = errors.New("некорректный алиас")

var (
	// linkPrefix срезает ссылку t.me, включая веб-превью t.me/s/<канал>.
	linkPrefix = regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.)?(?:t|telegram)\.me/(?:s/)?`)
	aliasRegex = regexp.MustCompile(`(?i)^[a-z0-9_]{5,}$`)
)

// NormalizeIdentifier приводит ввод пользователя (@alias, ссылка t.me или
// голое имя) к имени канала без префиксов. Регистр сохраняется.
func NormalizeIdentifier(input string) string {
	name := strings.TrimSpace(input)
	name = linkPrefix.ReplaceAllString(name, "")
	name = strings.TrimLeft(name, "@")
	if i := strings.IndexAny(name, "/?#"); i >= 0 {
		name = name[:i]
	}
	return name
}

// ParseAlias нормализует идентификатор и проверяет форму имени канала.
func ParseAlias(input string) (string, error) {
	name := NormalizeIdentifier(input)
	if !aliasRegex.MatchString(name) {
		return "", ErrAliasInvalid
	}
	return name, nil
}
