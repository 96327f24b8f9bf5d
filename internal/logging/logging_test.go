package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger("sim", &buf, INFO)

	l.Debug("скрыто")
	l.Info("видно %d", 1)
	l.Error("ошибка")

	out := buf.String()
	assert.NotContains(t, out, "скрыто")
	assert.Contains(t, out, "[INFO] [sim] видно 1")
	assert.Contains(t, out, "[ERROR] [sim] ошибка")

	buf.Reset()
	l.SetLevels(TRACE, ERROR+1)
	l.Trace("теперь видно")
	assert.Contains(t, buf.String(), "[TRACE]")
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, DEBUG, l)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

func TestDefaultLoggerSwap(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	var buf bytes.Buffer
	SetDefault(NewWriterLogger("", &buf, WARN))
	Info("не попадёт")
	Warn("внимание")

	assert.False(t, strings.Contains(buf.String(), "не попадёт"))
	assert.Contains(t, buf.String(), "[WARN] внимание")
}

func TestFileLogger(t *testing.T) {
	prevDir := LogDir
	LogDir = t.TempDir()
	defer func() { LogDir = prevDir }()

	l, err := NewLogger("storage")
	require.NoError(t, err)
	l.SetLevels(ERROR+1, TRACE)
	l.Debug("в файл")
	require.NoError(t, l.Close())

	files, err := filepath.Glob(filepath.Join(LogDir, "storage_*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "[DEBUG] [storage] в файл")
}

func TestLoggerManager(t *testing.T) {
	prevDir := LogDir
	LogDir = t.TempDir()
	defer func() { LogDir = prevDir }()

	lm := &LoggerManager{loggers: make(map[string]*Logger)}
	a, err := lm.GetLogger("api")
	require.NoError(t, err)
	b, err := lm.GetLogger("api")
	require.NoError(t, err)
	assert.Same(t, a, b)

	require.NoError(t, lm.SetLogLevel("api", WARN, INFO))
	assert.Error(t, lm.SetLogLevel("unknown", WARN, INFO))
	require.NoError(t, lm.CloseAll())

	LogDir = filepath.Join(LogDir, "file")
	require.NoError(t, os.WriteFile(LogDir, nil, 0o644))
	fallback := lm.MustGetLogger("broken")
	require.NotNil(t, fallback)
	assert.Nil(t, fallback.file)
}
