package mtproto

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/gotd/td/session"
)

func TestConvertSessionTelethonRows(t *testing.T) {
	key := strings.Repeat("ab", 256)
	raw := `[{"dc_id":2,"server_address":"149.154.167.51","port":443,"auth_key":"` + key + `"}]`

	out, format, err := ConvertSession([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if format != SessionFormatTelethonRows {
		t.Fatalf("format = %s", format)
	}
	var stored struct {
		Version int
		Data    session.Data
	}
	if err := json.Unmarshal(out, &stored); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stored.Version != 1 || stored.Data.DC != 2 || stored.Data.Addr != "149.154.167.51:443" {
		t.Fatalf("unexpected session data: %+v", stored.Data)
	}
	if len(stored.Data.AuthKey) != 256 || len(stored.Data.AuthKeyID) != 8 {
		t.Fatalf("unexpected key sizes: %d/%d", len(stored.Data.AuthKey), len(stored.Data.AuthKeyID))
	}

	again, format, err := ConvertSession(out)
	if err != nil {
		t.Fatalf("gotd JSON must be accepted as is: %v", err)
	}
	if format != SessionFormatGotd || string(again) != string(out) {
		t.Fatalf("gotd session was rewritten")
	}
}

func TestConvertSessionRejectsGarbage(t *testing.T) {
	if _, _, err := ConvertSession([]byte("   ")); err == nil {
		t.Fatal("expected error for empty session")
	}
	if _, _, err := ConvertSession([]byte(`{"foo":"bar"}`)); !errors.Is(err, ErrUnsupportedSessionFormat) {
		t.Fatalf("expected ErrUnsupportedSessionFormat, got %v", err)
	}
	short := `[{"dc_id":2,"server_address":"1.1.1.1","port":443,"auth_key":"abcd"}]`
	if _, _, err := ConvertSession([]byte(short)); err == nil {
		t.Fatal("expected error for short auth key")
	}
}

type fakeSessionRepo struct {
	rows map[string][]byte
}

func (f *fakeSessionRepo) LoadMTProtoSession(_ context.Context, name string) ([]byte, error) {
	data, ok := f.rows[name]
	if !ok {
		return nil, session.ErrNotFound
	}
	return data, nil
}

func (f *fakeSessionRepo) StoreMTProtoSession(_ context.Context, name string, data []byte) error {
	f.rows[name] = data
	return nil
}

func TestSessionDB(t *testing.T) {
	repo := &fakeSessionRepo{rows: map[string][]byte{}}
	s := NewSessionDB(repo, "primary")
	if err := s.StoreSession(context.Background(), []byte("blob")); err != nil {
		t.Fatalf("store: %v", err)
	}
	if string(repo.rows["primary"]) != "blob" {
		t.Fatalf("session stored under wrong name: %v", repo.rows)
	}
	data, err := s.LoadSession(context.Background())
	if err != nil || string(data) != "blob" {
		t.Fatalf("load = %q, %v", data, err)
	}
}
