package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("info"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("bogus"))
}

func TestNewWithWriter_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("warn", &buf)

	log.Info().Msg("should be dropped")
	assert.Empty(t, buf.String())

	log.Warn().Msg("wallet drift detected")
	assert.Contains(t, buf.String(), "wallet drift detected")
}

func TestNew_TagsComponent(t *testing.T) {
	log := New("ledger", "info", false)
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}
