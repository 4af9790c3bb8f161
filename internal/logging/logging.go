// Package logging builds the process logger and captures failure
// artifacts (screenshot plus page HTML) for post-mortem debugging.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. Console output uses a human-readable
// encoder; verbose enables debug level.
func New(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	return logger, nil
}

// PageSnapshotter is the part of a browser session the artifact sink
// needs.
type PageSnapshotter interface {
	Screenshot(path string) error
	PageHTML() (string, error)
}

// Artifacts writes failure snapshots into a per-run directory.
type Artifacts struct {
	dir    string
	logger *zap.Logger
}

// NewArtifacts creates the artifact sink rooted at dir.
func NewArtifacts(dir string, logger *zap.Logger) *Artifacts {
	return &Artifacts{dir: dir, logger: logger}
}

// Capture saves a screenshot and the page HTML for the given account
// and failure label. Returns the screenshot path. Capture never fails
// the caller: artifact errors are logged and an empty path returned.
func (a *Artifacts) Capture(page PageSnapshotter, account, label string) string {
	if a == nil || page == nil {
		return ""
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		a.logger.Warn("create artifact dir", zap.Error(err))
		return ""
	}

	stamp := time.Now().Format("20060102_150405")
	id := uuid.NewString()[:8]
	base := fmt.Sprintf("%s_%s_%s_%s", account, label, stamp, id)

	shot := filepath.Join(a.dir, base+".png")
	if err := page.Screenshot(shot); err != nil {
		a.logger.Warn("capture screenshot", zap.String("account", account), zap.Error(err))
		shot = ""
	}

	if html, err := page.PageHTML(); err != nil {
		a.logger.Warn("capture page html", zap.String("account", account), zap.Error(err))
	} else if err := os.WriteFile(filepath.Join(a.dir, base+".html"), []byte(html), 0o644); err != nil {
		a.logger.Warn("write page html", zap.String("account", account), zap.Error(err))
	}

	return shot
}
