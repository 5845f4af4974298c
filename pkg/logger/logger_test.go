package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInit_WritesJSONToFile(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Log = prev })

	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, Init("info", "json", path))

	Info("ledger write skipped", zap.String("user_id", "u-1"))
	Debug("not written at info level")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"ledger write skipped"`)
	assert.Contains(t, string(data), `"user_id":"u-1"`)
	assert.NotContains(t, string(data), "not written")
}

func TestInit_RejectsUnknownLevel(t *testing.T) {
	err := Init("verbose", "json", "stdout")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestGetLogger_UsableBeforeInit(t *testing.T) {
	assert.NotNil(t, GetLogger())
	assert.NotNil(t, Named("retrieval"))
}
