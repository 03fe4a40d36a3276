package export

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tg-channel-speckit/internal/domain"
)

func TestOutputPath(t *testing.T) {
	cases := map[string]string{
		"@durov":                   "durov.json",
		"durov":                    "durov.json",
		"https://t.me/durov":       "durov.json",
		"t.me/durov/123":           "durov.json",
		"  @Some_Channel  ":        "Some_Channel.json",
		"https://telegram.me/news": "news.json",
	}
	for input, want := range cases {
		if got := OutputPath("out", input); got != filepath.Join("out", want) {
			t.Fatalf("OutputPath(%q) = %q, want %q", input, got, filepath.Join("out", want))
		}
	}
}

func TestCheckOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chan.json")
	if err := CheckOverwrite(path, false); err != nil {
		t.Fatalf("missing file must pass: %v", err)
	}
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	err := CheckOverwrite(path, false)
	if !errors.Is(err, ErrOutputExists) {
		t.Fatalf("expected ErrOutputExists, got %v", err)
	}
	if !strings.Contains(err.Error(), path) {
		t.Fatalf("error should mention path: %v", err)
	}
	if err := CheckOverwrite(path, true); err != nil {
		t.Fatalf("force must pass: %v", err)
	}
}

func TestWriteJSONReplacesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chan.json")
	if err := os.WriteFile(path, []byte("stale content that is longer than the new one"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	channel := domain.NewChannel(1, 0, "chan", "Канал <тест> & co")
	out := domain.NewOutputFile(channel, domain.ExportStatusComplete, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
	if err := WriteJSON(out, path); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	text := string(data)
	if strings.Contains(text, "stale") {
		t.Fatalf("old content survived:\n%s", text)
	}
	if !strings.Contains(text, "Канал <тест> & co") {
		t.Fatalf("expected unescaped title:\n%s", text)
	}
	if !strings.HasPrefix(text, "{\n  \"version\": \"1.0\"") {
		t.Fatalf("expected two-space indented envelope:\n%s", text)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestWriteJSONKeepsMarkupCharacters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chan.json")
	date := domain.NewTimestamp(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
	post := domain.Post{ID: 1, Text: "a < b && c > d", Date: date}.WithComments([]domain.Comment{
		{ID: 2, Text: "<3 & co", Date: date, Author: domain.AnonymousAuthor()},
	})
	channel := domain.NewChannel(1, 0, "chan", "R&D <news>").WithPosts([]domain.Post{post})
	if err := WriteJSON(domain.NewOutputFile(channel, domain.ExportStatusComplete, date.Time()), path); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	text := string(data)
	for _, want := range []string{`"text": "a < b && c > d"`, `"text": "<3 & co"`, `"title": "R&D <news>"`} {
		if !strings.Contains(text, want) {
			t.Fatalf("output misses %s:\n%s", want, text)
		}
	}
	if strings.Contains(text, `\u00`) {
		t.Fatalf("unexpected escapes:\n%s", text)
	}
}
