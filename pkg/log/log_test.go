package log

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestReplaceRoutesStructuredFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	Replace(zap.New(core))
	t.Cleanup(func() { Replace(zap.NewNop()) })

	Debugf("hidden %d", 1)
	Infof("[Processor] 保存 %d 个分块", 4)
	Warnw("llm provider failed", "provider", "primary", "reason", "quota")
	Error("falhou", errors.New("boom"))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "[Processor] 保存 4 个分块", entries[0].Message)
	assert.Equal(t, "primary", entries[1].ContextMap()["provider"])
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "boom", entries[2].ContextMap()["error"])
}

func TestInitWritesToFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init("debug", "json", dir))
	t.Cleanup(func() { Replace(zap.NewNop()) })

	Infow("ready", "port", "8081")
	Sync()

	b, err := os.ReadFile(filepath.Join(dir, "app.log"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"ready"`)
	assert.Contains(t, string(b), `"port":"8081"`)
}
