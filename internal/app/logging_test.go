package app_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castpair/internal/app"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := app.NewLogger(app.LogConfig{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log.WithField("code", "ABC123").Info("pairing code ready")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ABC123", entry["code"])
	assert.Equal(t, "pairing code ready", entry["msg"])
}

func TestNewLogger_Errors(t *testing.T) {
	_, err := app.NewLogger(app.LogConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
	_, err = app.NewLogger(app.LogConfig{Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
}
