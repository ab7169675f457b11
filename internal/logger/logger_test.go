package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNew_ParsesLevel(t *testing.T) {
	require.Equal(t, logrus.DebugLevel, New("debug", false).GetLevel())
	require.Equal(t, logrus.InfoLevel, New("not-a-level", false).GetLevel())
}

func TestNewWithOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := newWithOutput(&buf, "info", true)

	log.WithField("session_id", "abc").Info("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "hello", entry["msg"])
	require.Equal(t, "abc", entry["session_id"])
}

func TestDiscard_WritesNothing(t *testing.T) {
	log := Discard()
	log.Error("dropped")
	require.Equal(t, logrus.PanicLevel, log.GetLevel())
}
