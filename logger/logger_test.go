package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel(t *testing.T) {
	cases := []struct {
		value string
		want  zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"0", zerolog.DebugLevel},
		{"3", zerolog.ErrorLevel},
		{"garbage", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		t.Run("value "+tc.value, func(t *testing.T) {
			t.Setenv("PARLEY_LOG_LEVEL", tc.value)
			assert.Equal(t, tc.want, Level())
		})
	}
}

func TestRotatingFileWriterOpensTodayFile(t *testing.T) {
	dir := t.TempDir()

	writer, err := newRotatingFileWriter(dir)
	require.NoError(t, err)
	defer writer.Close()

	today := time.Now().Format(time.DateOnly)
	assert.Equal(t, today, writer.date)
	_, err = os.Stat(filepath.Join(dir, logFileName(today)))
	assert.NoError(t, err)
}

func TestRotatingFileWriterInvalidDir(t *testing.T) {
	writer, err := newRotatingFileWriter(filepath.Join(t.TempDir(), "missing", "deeper"))
	assert.Error(t, err)
	assert.Nil(t, writer)
}

func TestRotatingFileWriterWrite(t *testing.T) {
	dir := t.TempDir()

	writer, err := newRotatingFileWriter(dir)
	require.NoError(t, err)
	defer writer.Close()

	line := []byte("a log line\n")
	n, err := writer.Write(line)
	require.NoError(t, err)
	assert.Equal(t, len(line), n)

	content, err := os.ReadFile(filepath.Join(dir, logFileName(time.Now().Format(time.DateOnly))))
	require.NoError(t, err)
	assert.Equal(t, line, content)
}

func TestPruneLogFilesKeepsNewest(t *testing.T) {
	dir := t.TempDir()

	var newest string
	for i := 0; i < keepLogFiles+3; i++ {
		date := time.Date(2025, 6, i+1, 0, 0, 0, 0, time.UTC).Format(time.DateOnly)
		newest = logFileName(date)
		require.NoError(t, os.WriteFile(filepath.Join(dir, newest), []byte("x"), 0644))
	}
	// unrelated files are never pruned
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	pruneLogFiles(dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, keepLogFiles+1)
	_, err = os.Stat(filepath.Join(dir, newest))
	assert.NoError(t, err)
}
