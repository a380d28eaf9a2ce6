package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestForContextAddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithCorrelationID(context.Background(), " req-42 ")
	detached := context.WithoutCancel(ctx)
	ctxLogger := ForContext(detached, base)
	ctxLogger.Info().Msg("graded")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "req-42", entry["correlation_id"])
}

func TestForContextWithoutCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	ctxLogger := ForContext(context.Background(), zerolog.New(&buf))
	ctxLogger.Info().Msg("graded")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.NotContains(t, entry, "correlation_id")
	require.Empty(t, CorrelationID(WithCorrelationID(context.Background(), "  ")))
}
