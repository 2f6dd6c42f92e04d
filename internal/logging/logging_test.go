package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuroyamii/playwright-stress-test/internal/config"
)

func TestLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, Level("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, Level("warning"))
	assert.Equal(t, logrus.ErrorLevel, Level("error"))
	assert.Equal(t, logrus.PanicLevel, Level("silent"))
	assert.Equal(t, logrus.InfoLevel, Level("bogus"))
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LogConfig{Level: "info", Format: "json"}, &buf)

	logger.WithField("step", 3).Info("step finished")
	logger.Debug("hidden")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "step finished", entry["msg"])
	assert.Equal(t, float64(3), entry["step"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LogConfig{Level: "debug", Format: "text"}, &buf)
	logger.Debug("probing")
	assert.Contains(t, buf.String(), "level=debug")
	assert.Contains(t, buf.String(), "msg=probing")
}

func TestOrDiscard(t *testing.T) {
	assert.NotNil(t, OrDiscard(nil))
	l := logrus.New()
	assert.Same(t, l, OrDiscard(l))
}
