package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogHandlerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(logHandler(&buf, "json"))
	logger.Info("startup", slog.String("addr", ":8080"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "startup", entry["msg"])
	require.Equal(t, ":8080", entry["addr"])
}

func TestLogHandlerPrettyDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(logHandler(&buf, "pretty"))
	logger.Info("startup")

	require.Contains(t, buf.String(), "msg=startup")
	require.False(t, json.Valid(buf.Bytes()))
}
