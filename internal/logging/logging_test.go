package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/jrsteele09/care-auth-server/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, logging.ParseLevel(" DEBUG "))
	require.Equal(t, zerolog.WarnLevel, logging.ParseLevel("warn"))
	require.Equal(t, zerolog.InfoLevel, logging.ParseLevel(""))
	require.Equal(t, zerolog.InfoLevel, logging.ParseLevel("chatty"))
}

func TestConfigure(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	t.Run("json outside dev", func(t *testing.T) {
		var buf bytes.Buffer
		logging.Configure(&buf, "PROD", "info")
		log.Info().Str("user_id", "u1").Msg("login")
		log.Debug().Msg("dropped")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
		require.Equal(t, "login", entry["message"])
		require.Equal(t, "u1", entry["user_id"])
	})

	t.Run("console in dev", func(t *testing.T) {
		var buf bytes.Buffer
		logging.Configure(&buf, "DEV", "debug")
		log.Debug().Msg("visible")
		require.Contains(t, buf.String(), "visible")
		require.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
	})
}
