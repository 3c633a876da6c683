package logger

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"parley/common"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

const (
	logFilePrefix = "parley-"
	logFileExt    = ".log"
	keepLogFiles  = 7
)

var (
	once   sync.Once
	logger zerolog.Logger
)

// Level reads PARLEY_LOG_LEVEL, accepting zerolog level names ("debug",
// "warn") as well as numeric levels. Unset or unparseable values mean info.
func Level() zerolog.Level {
	raw := strings.TrimSpace(os.Getenv("PARLEY_LOG_LEVEL"))
	if raw == "" {
		return zerolog.InfoLevel
	}
	if level, err := zerolog.ParseLevel(strings.ToLower(raw)); err == nil {
		return level
	}
	return zerolog.InfoLevel
}

// Get returns the process logger: console output, plus a daily log file under
// the state home when it is writable.
func Get() zerolog.Logger {
	once.Do(func() {
		zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
		zerolog.TimeFieldFormat = time.RFC3339Nano

		writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}}
		if stateHome, err := common.GetParleyStateHome(); err == nil {
			if fileWriter, err := newRotatingFileWriter(stateHome); err == nil {
				writers = append(writers, fileWriter)
			}
		}

		logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
			Level(Level()).
			With().
			Timestamp().
			Str("version", common.Version).
			Logger()
	})
	return logger
}

// rotatingFileWriter appends to one log file per calendar day and prunes the
// oldest files beyond the retention count. Dates sort lexically, so pruning
// sorts file names directly.
type rotatingFileWriter struct {
	mu   sync.Mutex
	dir  string
	date string
	file *os.File
}

var _ io.WriteCloser = (*rotatingFileWriter)(nil)

func newRotatingFileWriter(dir string) (*rotatingFileWriter, error) {
	w := &rotatingFileWriter{dir: dir}
	if err := w.openForToday(); err != nil {
		return nil, err
	}
	return w, nil
}

func logFileName(date string) string {
	return logFilePrefix + date + logFileExt
}

func (w *rotatingFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.openForToday(); err != nil {
		return 0, err
	}
	return w.file.Write(p)
}

func (w *rotatingFileWriter) openForToday() error {
	today := time.Now().Format(time.DateOnly)
	if w.file != nil && w.date == today {
		return nil
	}
	if w.file != nil {
		w.file.Close()
	}

	file, err := os.OpenFile(filepath.Join(w.dir, logFileName(today)),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	w.file = file
	w.date = today

	pruneLogFiles(w.dir)
	return nil
}

func (w *rotatingFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func pruneLogFiles(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, logFilePrefix) && strings.HasSuffix(name, logFileExt) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for len(names) > keepLogFiles {
		os.Remove(filepath.Join(dir, names[0]))
		names = names[1:]
	}
}
