package audit

import (
	"context"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig controls the rotating JSON lines file.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// FileSink appends events as JSON lines to a size-rotated file.
type FileSink struct {
	mu     sync.Mutex
	writer *lumberjack.Logger
}

// NewFileSink opens a rotating file sink.
func NewFileSink(cfg FileConfig) (*FileSink, error) {
	if cfg.Path == "" {
		return nil, errors.New("audit file path is empty")
	}
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	return &FileSink{
		writer: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    maxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
	}, nil
}

// Write implements Sink.
func (s *FileSink) Write(_ context.Context, e Event) error {
	line, err := sonic.ConfigFastest.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal audit event").With("order", e.OrderID)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.writer.Write(line); err != nil {
		return errors.Wrap(err, "append audit event").With("file", s.writer.Filename)
	}
	return nil
}

// Close flushes and closes the current file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Close()
}
