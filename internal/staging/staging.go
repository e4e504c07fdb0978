// Package staging owns the scratch directory where converted and downloaded
// artifacts live between load and export.
package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EnvRoot overrides the default staging root when set.
const EnvRoot = "DATAPREP_STAGING_DIR"

// Manager hands out unique staging folders and cleans up old ones.
type Manager struct {
	root string
	now  func() time.Time

	Log zerolog.Logger
}

// NewManager creates (if needed) and returns a manager over root. An empty
// root falls back to $DATAPREP_STAGING_DIR, then to a fixed folder under the
// OS temp dir.
func NewManager(root string) (*Manager, error) {
	if root == "" {
		root = os.Getenv(EnvRoot)
	}
	if root == "" {
		root = filepath.Join(os.TempDir(), "dataprep_staging")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create staging root: %w", err)
	}
	return &Manager{
		root: root,
		now:  time.Now,
		Log:  zerolog.Nop(),
	}, nil
}

func (m *Manager) Root() string { return m.root }

// CreateUniqueDir creates a fresh folder named after baseName. Timestamp plus
// uuid fragment keeps concurrent conversions of the same file apart.
func (m *Manager) CreateUniqueDir(baseName string) (string, error) {
	name := fmt.Sprintf("%d_%s_%s",
		m.now().UnixMilli(),
		strings.Split(uuid.NewString(), "-")[0],
		SanitizeName(baseName),
	)
	dir := filepath.Join(m.root, name)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	return dir, nil
}

// Remove deletes a single staged artifact (file or folder), best effort.
func (m *Manager) Remove(path string) {
	if path == "" || !strings.HasPrefix(path, m.root) {
		return
	}
	if err := os.RemoveAll(path); err != nil {
		m.Log.Warn().Err(err).Str("path", path).Msg("staging remove failed")
	}
}

// Cleanup deletes staged entries whose mtime is older than maxAge.
func (m *Manager) Cleanup(maxAge time.Duration) error {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return fmt.Errorf("read staging root: %w", err)
	}
	cutoff := m.now().Add(-maxAge)
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		p := filepath.Join(m.root, e.Name())
		if err := os.RemoveAll(p); err != nil {
			m.Log.Warn().Err(err).Str("path", p).Msg("staging cleanup failed")
			continue
		}
		m.Log.Debug().Str("path", p).Msg("staging entry removed")
	}
	return nil
}

// SanitizeName flattens a file name into a safe folder name fragment.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "artifact"
	}
	return b.String()
}
