package export

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"tg-channel-speckit/internal/domain"
	"tg-channel-speckit/internal/usecase/channels"
)

// ErrOutputExists возвращается, если файл выгрузки уже есть и перезапись не разрешена.
var ErrOutputExists = errors.New("output file already exists")

// OutputPath вычисляет путь файла выгрузки: <dir>/<канал>.json.
func OutputPath(dir, identifier string) string {
	return filepath.Join(dir, channels.NormalizeIdentifier(identifier)+".json")
}

// CheckOverwrite запрещает перезапись существующего файла без force.
func CheckOverwrite(path string, force bool) error {
	if force {
		return nil
	}
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrOutputExists, path)
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return err
	}
}

// WriteJSON записывает конверт в path, создавая каталоги. Существующий файл
// заменяется целиком через временный файл и rename.
func WriteJSON(out domain.OutputFile, path string) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err = enc.Encode(out); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod output: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace output: %w", err)
	}
	return nil
}
