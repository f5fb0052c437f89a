package message

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ValidSessionsSend(t *testing.T) {
	raw := []byte(`{"type":"sessions_send","content":"hello","targetAgentId":"agent-2"}`)
	msg, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, SessionsSend, msg.Type)
	require.NotNil(t, msg.Content)
	assert.Equal(t, "hello", *msg.Content)
	require.NotNil(t, msg.TargetAgentID)
	assert.Equal(t, "agent-2", *msg.TargetAgentID)
}

func TestParse_MissingType(t *testing.T) {
	_, err := Parse([]byte(`{"content":"hello"}`))
	assert.Error(t, err)
}

func TestParse_UnknownType(t *testing.T) {
	_, err := Parse([]byte(`{"type":"not_a_real_type"}`))
	assert.Error(t, err)
}

func TestParse_UnknownFieldRejected(t *testing.T) {
	_, err := Parse([]byte(`{"type":"ping","unexpected":"value"}`))
	assert.Error(t, err)
}

func TestParse_InvalidJSON(t *testing.T) {
	_, err := Parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestParse_ContentTooLong(t *testing.T) {
	oversized := strings.Repeat("a", maxContentLen+1)
	_, err := Parse([]byte(`{"type":"sessions_send","content":"` + oversized + `"}`))
	assert.Error(t, err)
}

func TestParse_APICallWithBody(t *testing.T) {
	raw := []byte(`{"type":"api_call","url":"https://example.com","body":"{\"q\":1}"}`)
	msg, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, APICall, msg.Type)
	require.NotNil(t, msg.URL)
	assert.Equal(t, "https://example.com", *msg.URL)
}

func TestParse_Ping(t *testing.T) {
	msg, err := Parse([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, Ping, msg.Type)
	assert.Nil(t, msg.Content)
}
