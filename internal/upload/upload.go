package upload

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shopfive/backend/internal/util"
)

// ErrDisallowedType is returned when the file extension is not on the
// allow-list.
var ErrDisallowedType = errors.New("file type not allowed")

var allowedExtensions = map[string]bool{
	".jpeg": true,
	".jpg":  true,
	".png":  true,
	".pdf":  true,
	".docx": true,
}

// Saver writes uploaded files under a local directory. Stored names are
// sanitized and prefixed with a UTC timestamp; the returned path is
// relative ("uploads/<name>") for persistence.
type Saver struct {
	dir string
	now func() time.Time
}

func NewSaver(dir string) *Saver {
	return &Saver{
		dir: dir,
		now: time.Now,
	}
}

// SetClock overrides the time source. Test use only.
func (s *Saver) SetClock(now func() time.Time) {
	s.now = now
}

// Allowed reports whether a filename passes the extension allow-list.
func Allowed(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Save stores an uploaded file and returns its relative path.
func (s *Saver) Save(file multipart.File, filename string) (string, error) {
	if !Allowed(filename) {
		return "", ErrDisallowedType
	}

	name := s.now().UTC().Format("20060102150405") + "_" + sanitizeFilename(filename)

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}

	relPath := "uploads/" + name

	util.Info("File uploaded",
		zap.String("filename", filename),
		zap.String("path", relPath))

	return relPath, nil
}

// sanitizeFilename strips path components and shell-hostile characters,
// keeping only the base name's safe runes.
func sanitizeFilename(filename string) string {
	base := filepath.Base(filename)
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
