// Copyright 2025 ClawShield
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/getclawshield/clawshield/internal/logging"
)

// PostgresStore implements RelationalStore against the gateway's fixed
// schema (agents, agent_communication_rules, firewall_rules, threats,
// analyzed_skills).
type PostgresStore struct {
	db  *sql.DB
	log *logging.Logger
}

// NewPostgresStore opens a connection pool against dsn and verifies it with
// a ping before returning.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("store: failed to ping postgres: %w", err)
	}

	return &PostgresStore{db: db, log: logging.New("store.postgres")}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) GetAgent(ctx context.Context, agentID string) (*AgentRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, endpoint, permissions, status, max_requests_per_minute, trusted_domains, metadata
		FROM agents WHERE id = $1`, agentID)

	var a AgentRow
	var permissions, trustedDomains []byte
	var metadata []byte
	if err := row.Scan(&a.ID, &a.Name, &a.Endpoint, &permissions, &a.Status, &a.MaxRequestsPerMinute, &trustedDomains, &metadata); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: GetAgent: %w", err)
	}
	if err := json.Unmarshal(permissions, &a.Permissions); err != nil {
		return nil, fmt.Errorf("store: GetAgent: decode permissions: %w", err)
	}
	if err := json.Unmarshal(trustedDomains, &a.TrustedDomains); err != nil {
		return nil, fmt.Errorf("store: GetAgent: decode trusted_domains: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
			return nil, fmt.Errorf("store: GetAgent: decode metadata: %w", err)
		}
	}
	return &a, nil
}

func (s *PostgresStore) CommunicationRule(ctx context.Context, sourceAgentID, targetAgentID string) (*CommunicationRule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_agent_id, target_agent_id, enabled, max_messages_per_minute
		FROM agent_communication_rules
		WHERE source_agent_id = $1 AND target_agent_id = $2 AND enabled = true
		LIMIT 1`, sourceAgentID, targetAgentID)

	var c CommunicationRule
	if err := row.Scan(&c.ID, &c.SourceAgentID, &c.TargetAgentID, &c.Enabled, &c.MaxMessagesPerMinute); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: CommunicationRule: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) LoadEnabledRules(ctx context.Context) ([]FirewallRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, type, priority, enabled, conditions, action
		FROM firewall_rules WHERE enabled = true`)
	if err != nil {
		return nil, fmt.Errorf("store: LoadEnabledRules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []FirewallRule
	for rows.Next() {
		var r FirewallRule
		var conditionsJSON, actionJSON []byte
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.Kind, &r.Priority, &r.Enabled, &conditionsJSON, &actionJSON); err != nil {
			return nil, fmt.Errorf("store: LoadEnabledRules: scan: %w", err)
		}
		if err := json.Unmarshal(conditionsJSON, &r.Conditions); err != nil {
			s.log.Warn("", "", "skipping rule with malformed conditions", map[string]interface{}{"rule_id": r.ID, "error": err.Error()})
			continue
		}
		if err := json.Unmarshal(actionJSON, &r.Action); err != nil {
			s.log.Warn("", "", "skipping rule with malformed action", map[string]interface{}{"rule_id": r.ID, "error": err.Error()})
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: LoadEnabledRules: iterate: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) RecordThreat(ctx context.Context, event ThreatEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("store: RecordThreat: encode details: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO threats (id, agent_id, threat_type, severity, details, resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.AgentID, event.ThreatType, event.Severity, details, event.Resolved, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: RecordThreat: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertAnalyzedSkill(ctx context.Context, skill AnalyzedSkill) error {
	vulns, err := json.Marshal(skill.Vulnerabilities)
	if err != nil {
		return fmt.Errorf("store: UpsertAnalyzedSkill: encode vulnerabilities: %w", err)
	}
	patterns, err := json.Marshal(skill.Patterns)
	if err != nil {
		return fmt.Errorf("store: UpsertAnalyzedSkill: encode patterns: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analyzed_skills (code_hash, language, safe, risk_score, reason, vulnerabilities, patterns, analysis_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code_hash) DO UPDATE SET
			language = EXCLUDED.language, safe = EXCLUDED.safe, risk_score = EXCLUDED.risk_score,
			reason = EXCLUDED.reason, vulnerabilities = EXCLUDED.vulnerabilities,
			patterns = EXCLUDED.patterns, analysis_time_ms = EXCLUDED.analysis_time_ms`,
		skill.CodeHash, skill.Language, skill.Safe, skill.RiskScore, skill.Reason, vulns, patterns, skill.AnalysisTimeMS)
	if err != nil {
		return fmt.Errorf("store: UpsertAnalyzedSkill: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAnalyzedSkill(ctx context.Context, codeHash string) (*AnalyzedSkill, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT code_hash, language, safe, risk_score, reason, vulnerabilities, patterns, analysis_time_ms
		FROM analyzed_skills WHERE code_hash = $1`, codeHash)

	var a AnalyzedSkill
	var vulns, patterns []byte
	if err := row.Scan(&a.CodeHash, &a.Language, &a.Safe, &a.RiskScore, &a.Reason, &vulns, &patterns, &a.AnalysisTimeMS); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: GetAnalyzedSkill: %w", err)
	}
	if err := json.Unmarshal(vulns, &a.Vulnerabilities); err != nil {
		return nil, fmt.Errorf("store: GetAnalyzedSkill: decode vulnerabilities: %w", err)
	}
	if err := json.Unmarshal(patterns, &a.Patterns); err != nil {
		return nil, fmt.Errorf("store: GetAnalyzedSkill: decode patterns: %w", err)
	}
	return &a, nil
}
