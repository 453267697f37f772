package session

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var unsafeLabel = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// ScreenCapture saves screenshots to disk for later inspection.
// A ScreenCapture with an empty directory saves nothing.
type ScreenCapture struct {
	logger  *slog.Logger
	saveDir string
	now     func() time.Time
}

// NewScreenCapture creates a screen capture service writing into dir.
func NewScreenCapture(dir string, logger *slog.Logger) *ScreenCapture {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScreenCapture{
		logger:  logger,
		saveDir: dir,
		now:     time.Now,
	}
}

// Enabled reports whether snapshots are written.
func (s *ScreenCapture) Enabled() bool {
	return s != nil && s.saveDir != ""
}

// Save writes png into the save directory and returns the file path.
func (s *ScreenCapture) Save(png []byte, label string) (string, error) {
	if !s.Enabled() || len(png) == 0 {
		return "", nil
	}

	if err := os.MkdirAll(s.saveDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create save directory: %w", err)
	}

	label = unsafeLabel.ReplaceAllString(label, "_")
	filename := filepath.Join(s.saveDir, fmt.Sprintf("%s-%d.png", label, s.now().UnixMilli()))

	if err := os.WriteFile(filename, png, 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	s.logger.Debug("Snapshot saved", "path", filename)
	return filename, nil
}
