package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerLevels(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	InitLogger(false, "")
	assert.False(t, slog.Default().Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelInfo))

	InitLogger(true, "")
	assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelDebug))
}

func TestInitLoggerFileOutput(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	path := filepath.Join(t.TempDir(), "depgate.log")
	InitLogger(false, path)

	slog.Info("scan finished", "result", "pass")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	assert.Equal(t, "scan finished", rec["msg"])
	assert.Equal(t, "pass", rec["result"])
}

func TestMultiHandlerFansOut(t *testing.T) {
	a := &countingHandler{}
	b := &countingHandler{}
	m := &multiHandler{handlers: []slog.Handler{a, b}}
	logger := slog.New(m)

	logger.Info("hello")
	assert.Equal(t, 1, a.count)
	assert.Equal(t, 1, b.count)
}

type countingHandler struct {
	count int
}

func (h *countingHandler) Enabled(ctx context.Context, level slog.Level) bool { return true }

func (h *countingHandler) Handle(ctx context.Context, record slog.Record) error {
	h.count++
	return nil
}

func (h *countingHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }

func (h *countingHandler) WithGroup(name string) slog.Handler { return h }
