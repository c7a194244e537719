package app

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestSetupLogging_LevelAndFormat(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	SetupLoggingTo(&buf, LogConfig{Level: "warn"}, false)
	log.Info().Msg("hidden")
	log.Warn().Str("book", "alice").Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"book":"alice"`)

	buf.Reset()
	SetupLoggingTo(&buf, LogConfig{Level: "warn"}, true)
	log.Debug().Msg("verbose")
	assert.Contains(t, buf.String(), "verbose")

	buf.Reset()
	SetupLoggingTo(&buf, LogConfig{Level: "nonsense"}, false)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
