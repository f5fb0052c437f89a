package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getclawshield/clawshield/internal/firewall"
	"github.com/getclawshield/clawshield/internal/rules"
	"github.com/getclawshield/clawshield/internal/skill"
	"github.com/getclawshield/clawshield/internal/store"
)

type fakeRelStore struct {
	agents    map[string]*store.AgentRow
	rules     []store.FirewallRule
	cache     map[string]*store.AnalyzedSkill
	upserted  []store.AnalyzedSkill
}

func newFakeRelStore() *fakeRelStore {
	return &fakeRelStore{agents: map[string]*store.AgentRow{}, cache: map[string]*store.AnalyzedSkill{}}
}

func (f *fakeRelStore) GetAgent(ctx context.Context, agentID string) (*store.AgentRow, error) {
	return f.agents[agentID], nil
}
func (f *fakeRelStore) CommunicationRule(ctx context.Context, source, target string) (*store.CommunicationRule, error) {
	return nil, nil
}
func (f *fakeRelStore) LoadEnabledRules(ctx context.Context) ([]store.FirewallRule, error) {
	return f.rules, nil
}
func (f *fakeRelStore) RecordThreat(ctx context.Context, event store.ThreatEvent) error { return nil }
func (f *fakeRelStore) UpsertAnalyzedSkill(ctx context.Context, s store.AnalyzedSkill) error {
	f.upserted = append(f.upserted, s)
	f.cache[s.CodeHash] = &s
	return nil
}
func (f *fakeRelStore) GetAnalyzedSkill(ctx context.Context, codeHash string) (*store.AnalyzedSkill, error) {
	return f.cache[codeHash], nil
}
func (f *fakeRelStore) Close() error { return nil }

type fakeKVStore struct {
	blacklisted map[string]bool
}

func newFakeKVStore() *fakeKVStore { return &fakeKVStore{blacklisted: map[string]bool{}} }

func (f *fakeKVStore) IncrRateLimit(ctx context.Context, agentID string, ttl time.Duration) (int64, error) {
	return 1, nil
}
func (f *fakeKVStore) IsBlacklisted(ctx context.Context, agentID string) (bool, error) {
	return f.blacklisted[agentID], nil
}
func (f *fakeKVStore) Blacklist(ctx context.Context, agentID string, ttl time.Duration) error {
	return nil
}
func (f *fakeKVStore) RecentMessages(ctx context.Context, agentID string) ([]string, error) {
	return nil, nil
}
func (f *fakeKVStore) PushMessage(ctx context.Context, agentID, fingerprint string, maxLen int, ttl time.Duration) error {
	return nil
}
func (f *fakeKVStore) IsBadIP(ctx context.Context, ip string) (bool, error)         { return false, nil }
func (f *fakeKVStore) IsBadDomain(ctx context.Context, domain string) (bool, error) { return false, nil }
func (f *fakeKVStore) Close() error                                                { return nil }

func newTestHandlers() (*handlers, *fakeRelStore) {
	rel := newFakeRelStore()
	kv := newFakeKVStore()
	orch := firewall.New(firewall.Options{
		RelStore:             rel,
		KVStore:              kv,
		Rules:                rules.NewEngine(rel, time.Minute),
		DefaultRateLimit:     100,
		ThreatScoreThreshold: 0.8,
		RateLimitTTL:         time.Minute,
		BlacklistTTL:         time.Hour,
	})
	return &handlers{rel: rel, orch: orch, skillOpts: skill.DefaultOptions(), conns: newConnLimiter()}, rel
}

func TestHealthz(t *testing.T) {
	h, _ := newTestHandlers()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	h.healthz(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestInspectRequest_SafeRequestReturns200(t *testing.T) {
	h, _ := newTestHandlers()
	body := `{"agentId":"agent-1","method":"GET","path":"/status"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/inspect/request", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.inspectRequest(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var result firewall.InspectionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Allowed)
}

func TestInspectRequest_BlacklistedAgentReturns403(t *testing.T) {
	rel := newFakeRelStore()
	kv := newFakeKVStore()
	kv.blacklisted["agent-1"] = true
	orch := firewall.New(firewall.Options{
		RelStore:             rel,
		KVStore:              kv,
		Rules:                rules.NewEngine(rel, time.Minute),
		DefaultRateLimit:     100,
		ThreatScoreThreshold: 0.8,
		RateLimitTTL:         time.Minute,
		BlacklistTTL:         time.Hour,
	})
	h := &handlers{rel: rel, orch: orch, skillOpts: skill.DefaultOptions(), conns: newConnLimiter()}

	body := `{"agentId":"agent-1","method":"GET","path":"/status"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/inspect/request", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.inspectRequest(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	var result firewall.InspectionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Allowed)

	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "Request blocked by firewall", envelope["error"])
	assert.Equal(t, "Agent is blacklisted", envelope["reason"])
	assert.Equal(t, "critical", envelope["threatLevel"])
}

func TestInspectRequest_InvalidJSONReturns400(t *testing.T) {
	h, _ := newTestHandlers()
	req := httptest.NewRequest(http.MethodPost, "/v1/inspect/request", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()

	h.inspectRequest(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeSkill_MissingCodeReturns400(t *testing.T) {
	h, _ := newTestHandlers()
	req := httptest.NewRequest(http.MethodPost, "/v1/skills/analyze", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	h.analyzeSkill(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeSkill_BenignCodeIsCached(t *testing.T) {
	h, rel := newTestHandlers()
	body := `{"code":"function add(a,b){return a+b;}"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/skills/analyze", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.analyzeSkill(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var result store.AnalyzedSkill
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Safe)
	assert.Len(t, rel.upserted, 1)

	// Second call with identical code hits the cache instead of re-analyzing.
	req2 := httptest.NewRequest(http.MethodPost, "/v1/skills/analyze", strings.NewReader(body))
	rec2 := httptest.NewRecorder()
	h.analyzeSkill(rec2, req2)
	assert.Equal(t, http.StatusOK, rec2.Code)
	assert.Len(t, rel.upserted, 1, "cached hash should short-circuit re-analysis")
}

func TestAnalyzeSkill_MalwareSignatureIsUnsafe(t *testing.T) {
	h, _ := newTestHandlers()
	body := `{"code":"const shell = \"/bin/sh -i\";"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/skills/analyze", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.analyzeSkill(rec, req)

	var result store.AnalyzedSkill
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Safe)
}

func TestBearerToken_StripsPrefix(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	assert.Equal(t, "abc.def.ghi", bearerToken(req))
}

func TestHeadersFrom_CopiesAllHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Agent-Id", "agent-9")
	headers := headersFrom(req)
	assert.Equal(t, "agent-9", headers["X-Agent-Id"])
}
