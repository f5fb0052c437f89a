package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	orig := log.Writer()
	origFlags := log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(orig)
		log.SetFlags(origFlags)
	})
	fn()
	return strings.TrimSpace(buf.String())
}

func TestNew_FallsBackToUnknownInstanceID(t *testing.T) {
	t.Setenv("INSTANCE_ID", "")
	l := New("gateway")
	assert.Equal(t, "gateway", l.Component)
	assert.Equal(t, "unknown", l.InstanceID)
}

func TestLog_EmitsValidJSONLine(t *testing.T) {
	l := New("rules")
	line := captureLog(t, func() {
		l.Info("agent-1", "req-1", "rule cache refreshed", map[string]interface{}{"count": 5})
	})

	var e entry
	require.NoError(t, json.Unmarshal([]byte(line), &e))
	assert.Equal(t, Info, e.Level)
	assert.Equal(t, "rules", e.Component)
	assert.Equal(t, "agent-1", e.AgentID)
	assert.Equal(t, "rule cache refreshed", e.Message)
	assert.Equal(t, float64(5), e.Fields["count"])
}

func TestErrorWithErr_AttachesErrorMessage(t *testing.T) {
	l := New("store")
	line := captureLog(t, func() {
		l.ErrorWithErr("", "", "failed to persist threat", errors.New("connection refused"), nil)
	})

	var e entry
	require.NoError(t, json.Unmarshal([]byte(line), &e))
	assert.Equal(t, Error, e.Level)
	assert.Equal(t, "connection refused", e.Fields["error"])
}

func TestErrorWithErr_NilErrorOmitsField(t *testing.T) {
	l := New("store")
	line := captureLog(t, func() {
		l.ErrorWithErr("", "", "generic failure", nil, nil)
	})

	var e entry
	require.NoError(t, json.Unmarshal([]byte(line), &e))
	_, hasError := e.Fields["error"]
	assert.False(t, hasError)
}
