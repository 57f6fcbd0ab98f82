package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveInstanceID(t *testing.T) {
	env := map[string]string{"INSTANCE_ID": "worker-1", "HOSTNAME": "notigpt-7d9f"}
	getenv := func(key string) string { return env[key] }

	require.Equal(t, "worker-1", resolveInstanceID(getenv))

	delete(env, "INSTANCE_ID")
	require.Equal(t, "notigpt-7d9f", resolveInstanceID(getenv))

	delete(env, "HOSTNAME")
	id := resolveInstanceID(getenv)
	require.Len(t, id, 8)
	require.Regexp(t, `^[0-9a-f]{8}$`, id)
}

func TestNew_JSONCarriesInstanceAndRunAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: slog.LevelInfo, Format: "json", Output: &buf})

	ctx := WithMode(WithRunID(context.Background(), "run-1"), "summarize")
	log.WithContext(ctx).WithComponent("digest").Info("digest run started")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, GetInstanceID(), rec["instance_id"])
	require.Equal(t, "run-1", rec["run_id"])
	require.Equal(t, "summarize", rec["mode"])
	require.Equal(t, "digest", rec["component"])
	require.Equal(t, "digest run started", rec["msg"])
}

func TestLogOperation_ReturnsFnError(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: slog.LevelInfo, Format: "json", Output: &buf})

	boom := errors.New("boom")
	err := log.LogOperation(context.Background(), "prune_digests", func() error { return boom })
	require.ErrorIs(t, err, boom)
	require.Contains(t, buf.String(), `"msg":"operation failed"`)
	require.Contains(t, buf.String(), `"operation":"prune_digests"`)
}

func TestFromConfig(t *testing.T) {
	t.Setenv("APP_ENV", "")
	cfg := FromConfig("warn", "")
	require.Equal(t, slog.LevelWarn, cfg.Level)
	require.Equal(t, "text", cfg.Format)

	t.Setenv("APP_ENV", "production")
	cfg = FromConfig("bogus", "text")
	require.Equal(t, slog.LevelDebug, cfg.Level)
	require.Equal(t, "json", cfg.Format)
}
