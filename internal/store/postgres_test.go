package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getclawshield/clawshield/internal/logging"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &PostgresStore{db: db, log: logging.New("store.postgres")}, mock
}

func TestGetAgent_Found(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	rows := sqlmock.NewRows([]string{"id", "name", "endpoint", "permissions", "status", "max_requests_per_minute", "trusted_domains", "metadata"}).
		AddRow("agent-1", "billing-agent", "https://billing.internal", []byte(`["read","write"]`), "active", 60, []byte(`["billing.internal"]`), []byte(`{}`))
	mock.ExpectQuery("SELECT (.+) FROM agents WHERE id = \\$1").WithArgs("agent-1").WillReturnRows(rows)

	agent, err := store.GetAgent(context.Background(), "agent-1")
	require.NoError(t, err)
	require.NotNil(t, agent)
	assert.Equal(t, "billing-agent", agent.Name)
	assert.Equal(t, []string{"read", "write"}, agent.Permissions)
	assert.Equal(t, 60, agent.MaxRequestsPerMinute)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAgent_NotFoundReturnsNilNil(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery("SELECT (.+) FROM agents WHERE id = \\$1").WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	agent, err := store.GetAgent(context.Background(), "ghost")
	assert.NoError(t, err)
	assert.Nil(t, agent)
}

func TestCommunicationRule_Found(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	rows := sqlmock.NewRows([]string{"id", "source_agent_id", "target_agent_id", "enabled", "max_messages_per_minute"}).
		AddRow("rule-1", "agent-1", "agent-2", true, 30)
	mock.ExpectQuery("SELECT (.+) FROM agent_communication_rules").WithArgs("agent-1", "agent-2").WillReturnRows(rows)

	rule, err := store.CommunicationRule(context.Background(), "agent-1", "agent-2")
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, 30, rule.MaxMessagesPerMinute)
}

func TestLoadEnabledRules_SkipsMalformedConditions(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	rows := sqlmock.NewRows([]string{"id", "name", "description", "type", "priority", "enabled", "conditions", "action"}).
		AddRow("r1", "good rule", "", "deny", 10, true, []byte(`[{"field":"ip","operator":"eq","value":"1.2.3.4"}]`), []byte(`{"kind":"deny"}`)).
		AddRow("r2", "bad rule", "", "deny", 20, true, []byte(`not json`), []byte(`{"kind":"deny"}`))
	mock.ExpectQuery("SELECT (.+) FROM firewall_rules WHERE enabled = true").WillReturnRows(rows)

	rules, err := store.LoadEnabledRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "r1", rules[0].ID)
}

func TestRecordThreat_EncodesDetails(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec("INSERT INTO threats").WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.RecordThreat(context.Background(), ThreatEvent{
		ID:        "threat-1",
		AgentID:   "agent-1",
		ThreatType: "rate_limit_exceeded",
		Severity:  "medium",
		Details:   map[string]interface{}{"count": 120},
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertAnalyzedSkill_OnConflictUpdate(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec("INSERT INTO analyzed_skills").WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpsertAnalyzedSkill(context.Background(), AnalyzedSkill{
		CodeHash:  "abc123",
		Language:  "javascript",
		Safe:      true,
		RiskScore: 0.1,
	})
	require.NoError(t, err)
}

func TestGetAnalyzedSkill_NotFoundReturnsNilNil(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery("SELECT (.+) FROM analyzed_skills WHERE code_hash = \\$1").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	skill, err := store.GetAnalyzedSkill(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, skill)
}
