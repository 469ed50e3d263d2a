// Package logging は設定から zerolog.Logger を構築します。
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ogurasousui/codex-expense-approval/internal/platform/config"
)

// New は標準出力に書き出すロガーを生成します。
func New(cfg config.LogConfig) (zerolog.Logger, error) {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter は w に書き出すロガーを生成します。format が console の場合は人向けの整形を行います。
func NewWithWriter(cfg config.LogConfig, w io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if raw := strings.TrimSpace(cfg.Level); raw != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(raw))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("logging: level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	out := w
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "expense-approval").Logger(), nil
}
