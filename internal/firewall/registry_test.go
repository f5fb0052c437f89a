package firewall

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetOnUnknownIDReturnsNil(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Get("ghost"))
}

func TestRegistry_RegisterThenGetRoundTrips(t *testing.T) {
	r := NewRegistry()
	ctx := &AgentContext{ID: "agent-1", Name: "billing-agent", Status: StatusActive}
	r.Register("agent-1", ctx)

	got := r.Get("agent-1")
	require.NotNil(t, got)
	assert.Equal(t, "billing-agent", got.Name)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestRegistry_RepeatedRegisterPreservesBookkeeping(t *testing.T) {
	r := NewRegistry()
	r.Register("agent-1", &AgentContext{ID: "agent-1", Name: "billing-agent"})
	r.Touch("agent-1", time.Now())
	r.Touch("agent-1", time.Now())

	merged := r.Register("agent-1", &AgentContext{ID: "agent-1", Status: StatusQuarantined})

	assert.Equal(t, "billing-agent", merged.Name, "name should be preserved when the incoming registration omits it")
	assert.Equal(t, StatusQuarantined, merged.Status)
	assert.Equal(t, int64(2), merged.RequestCount, "RequestCount is orchestrator-owned bookkeeping, never overwritten by Register")
}

func TestRegistry_HydrateIfAbsentOnlyBuildsOnce(t *testing.T) {
	r := NewRegistry()
	calls := 0
	build := func() *AgentContext {
		calls++
		return &AgentContext{ID: "agent-1", MaxRequestsPerMin: 50}
	}

	first := r.HydrateIfAbsent("agent-1", build)
	second := r.HydrateIfAbsent("agent-1", build)

	assert.Equal(t, 1, calls)
	assert.Same(t, first, second)
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	r.Register("agent-1", &AgentContext{ID: "agent-1"})
	r.Unregister("agent-1")
	assert.Nil(t, r.Get("agent-1"))
}
