package mtproto

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/gotd/td/crypto"
	"github.com/gotd/td/session"
	"github.com/gotd/td/tg"
)

// ErrUnsupportedSessionFormat is returned when MTProto session data can't be recognised.
var ErrUnsupportedSessionFormat = errors.New("unsupported MTProto session format")

// SessionFormat names the layout a session blob was imported from.
type SessionFormat string

const (
	SessionFormatGotd            SessionFormat = "gotd"
	SessionFormatTelethonAccount SessionFormat = "telethon-account"
	SessionFormatTelethonRows    SessionFormat = "telethon-rows"
	SessionFormatTelethonString  SessionFormat = "telethon-string"
)

type sessionDecoder struct {
	format SessionFormat
	decode func(raw []byte) ([]byte, error)
}

var sessionDecoders = []sessionDecoder{
	{format: SessionFormatGotd, decode: decodeGotdSession},
	{format: SessionFormatTelethonAccount, decode: decodeTelethonAccount},
	{format: SessionFormatTelethonRows, decode: decodeTelethonRows},
	{format: SessionFormatTelethonString, decode: decodeTelethonString},
}

// ConvertSession turns a session exported by Telethon (string session, account
// JSON with extra_params, or SQLite rows dumped as JSON) or by gotd into the
// JSON layout read by gotd's session.Storage. The detected format is returned
// so callers can tell whether any conversion happened.
func ConvertSession(raw []byte) ([]byte, SessionFormat, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, "", errors.New("MTProto session is empty")
	}
	for _, d := range sessionDecoders {
		if out, err := d.decode(trimmed); err == nil {
			return out, d.format, nil
		}
	}
	return nil, "", ErrUnsupportedSessionFormat
}

func decodeGotdSession(raw []byte) ([]byte, error) {
	var stored struct {
		Version int          `json:"Version"`
		Data    session.Data `json:"Data"`
	}
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	if stored.Version == 0 || len(stored.Data.AuthKey) == 0 {
		return nil, errors.New("not a gotd session")
	}
	return append([]byte(nil), raw...), nil
}

func decodeTelethonAccount(raw []byte) ([]byte, error) {
	var account struct {
		ExtraParams string `json:"extra_params"`
	}
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, err
	}
	if account.ExtraParams == "" {
		return nil, errors.New("telethon account JSON lacks extra_params")
	}
	return decodeTelethonString([]byte(account.ExtraParams))
}

func decodeTelethonRows(raw []byte) ([]byte, error) {
	var rows []struct {
		DCID          int    `json:"dc_id"`
		ServerAddress string `json:"server_address"`
		Port          int    `json:"port"`
		AuthKey       string `json:"auth_key"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.AuthKey == "" || row.ServerAddress == "" || row.Port == 0 {
			continue
		}
		return sessionFromAuthKey(row.DCID, row.ServerAddress, row.Port, row.AuthKey)
	}
	return nil, errors.New("telethon session JSON has no usable rows")
}

func decodeTelethonString(raw []byte) ([]byte, error) {
	candidate := strings.Trim(strings.TrimSpace(string(raw)), "\"'\n\r\t")
	if candidate == "" {
		return nil, errors.New("telethon session string is empty")
	}
	data, err := session.TelethonSession(candidate)
	if err != nil {
		return nil, err
	}
	if data.Config.ThisDC == 0 {
		data.Config.ThisDC = data.DC
	}
	if data.Addr != "" && len(data.Config.DCOptions) == 0 {
		if host, port, err := splitAddr(data.Addr); err == nil {
			data.Config.DCOptions = []tg.DCOption{{ID: data.DC, IPAddress: host, Port: port}}
		}
	}
	return encodeSession(*data)
}

func sessionFromAuthKey(dcID int, host string, port int, authKeyHex string) ([]byte, error) {
	authKeyHex = strings.Trim(strings.TrimSpace(authKeyHex), "'\"")
	if authKeyHex == "" {
		return nil, errors.New("telethon session auth_key is empty")
	}
	rawKey, err := hex.DecodeString(authKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode auth_key: %w", err)
	}
	var key crypto.Key
	if len(rawKey) != len(key) {
		return nil, fmt.Errorf("unexpected auth_key length: %d bytes", len(rawKey))
	}
	copy(key[:], rawKey)
	id := key.WithID().ID

	return encodeSession(session.Data{
		Config: session.Config{
			ThisDC:    dcID,
			DCOptions: []tg.DCOption{{ID: dcID, IPAddress: host, Port: port}},
		},
		DC:        dcID,
		Addr:      net.JoinHostPort(host, strconv.Itoa(port)),
		AuthKey:   append([]byte(nil), key[:]...),
		AuthKeyID: append([]byte(nil), id[:]...),
	})
}

func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func encodeSession(data session.Data) ([]byte, error) {
	return json.Marshal(struct {
		Version int          `json:"Version"`
		Data    session.Data `json:"Data"`
	}{Version: 1, Data: data})
}
