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

package firewall

import (
	"encoding/json"
	"time"
)

// ThreatLevel is the severity attached to a deny.
type ThreatLevel string

const (
	LevelLow      ThreatLevel = "low"
	LevelMedium   ThreatLevel = "medium"
	LevelHigh     ThreatLevel = "high"
	LevelCritical ThreatLevel = "critical"
	LevelUnknown  ThreatLevel = "unknown"
)

// AgentStatus is an Agent Context's lifecycle state.
type AgentStatus string

const (
	StatusActive      AgentStatus = "active"
	StatusInactive    AgentStatus = "inactive"
	StatusBlocked     AgentStatus = "blocked"
	StatusQuarantined AgentStatus = "quarantined"
)

// AgentContext is the in-memory, per-agent state the orchestrator owns
// exclusively. Every other component receives it by reference for read.
type AgentContext struct {
	ID                string
	Name              string
	Status            AgentStatus
	Permissions       []string
	TrustedDomains    []string
	MaxRequestsPerMin int
	RequestCount      int64
	LastSeen          time.Time
	CreatedAt         time.Time
	ThreatScore       float64
	RecentMessages    []string
	PeerIP            string
	ConnectedAt       time.Time
}

// InspectionResult is the pipeline's verdict.
type InspectionResult struct {
	Allowed     bool
	Reason      string
	ThreatLevel ThreatLevel
	ThreatScore *float64
}

// deniedEnvelope is an InspectionResult where Allowed is false, marshaled on
// the wire. Its "error" field is a fixed sentinel string, not the specific
// deny reason, so callers can branch on it without inspecting status codes.
type deniedEnvelope struct {
	Error       string      `json:"error"`
	Reason      string      `json:"reason,omitempty"`
	ThreatLevel ThreatLevel `json:"threatLevel,omitempty"`
}

type allowedEnvelope struct {
	Allowed     bool     `json:"allowed"`
	ThreatScore *float64 `json:"threatScore,omitempty"`
}

// MarshalJSON shapes the HTTP deny envelope: {error, reason, threatLevel} on
// deny, {allowed, threatScore} on allow.
func (r InspectionResult) MarshalJSON() ([]byte, error) {
	if !r.Allowed {
		return json.Marshal(deniedEnvelope{
			Error:       "Request blocked by firewall",
			Reason:      r.Reason,
			ThreatLevel: r.ThreatLevel,
		})
	}
	return json.Marshal(allowedEnvelope{Allowed: r.Allowed, ThreatScore: r.ThreatScore})
}

// UnmarshalJSON accepts either envelope shape, so round-tripping an
// InspectionResult through JSON (as tests and the triage UI do) recovers
// Allowed, Reason, and ThreatLevel regardless of which branch produced it.
func (r *InspectionResult) UnmarshalJSON(data []byte) error {
	var wire struct {
		Allowed     bool        `json:"allowed"`
		Error       string      `json:"error"`
		Reason      string      `json:"reason"`
		ThreatLevel ThreatLevel `json:"threatLevel"`
		ThreatScore *float64    `json:"threatScore"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.Allowed = wire.Allowed && wire.Error == ""
	r.Reason = wire.Reason
	r.ThreatLevel = wire.ThreatLevel
	r.ThreatScore = wire.ThreatScore
	return nil
}

// WSErrorReply is the framed WebSocket deny reply: {type:"error", error,
// reason}. Unlike the HTTP path, a deny over a WebSocket does not close the
// connection; the only disconnect-on-policy condition is the per-IP
// concurrent connection limit.
type WSErrorReply struct {
	Type   string `json:"type"`
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// WSOkReply acknowledges an allowed WebSocket frame.
type WSOkReply struct {
	Type        string   `json:"type"`
	ThreatScore *float64 `json:"threatScore,omitempty"`
}

// ToWireReply converts an InspectionResult into the WebSocket frame the
// gateway writes back to the client.
func (r InspectionResult) ToWireReply() interface{} {
	if !r.Allowed {
		return WSErrorReply{Type: "error", Error: "Request blocked by firewall", Reason: r.Reason}
	}
	return WSOkReply{Type: "ok", ThreatScore: r.ThreatScore}
}

// threat type names, used both as Threat Event's threat_type column and as
// the Prometheus deny-counter label.
const (
	ThreatRateLimitExceeded        = "rate_limit_exceeded"
	ThreatBlacklisted              = "blacklisted_agent"
	ThreatRuleViolation            = "rule_violation"
	ThreatHighThreatScore          = "high_threat_score"
	ThreatInvalidMessage           = "invalid_message_format"
	ThreatUnauthorizedCommunication = "unauthorized_agent_communication"
	ThreatInfiniteLoop             = "infinite_loop"
	ThreatPromptInjection          = "prompt_injection"
	ThreatDataExfiltration         = "data_exfiltration"
	ThreatMalwareDetected          = "malware_detected"
	ThreatCredentialLeak           = "credential_leak"
	ThreatWebsocketAbuse           = "websocket_abuse"
	ThreatInspectionError          = "inspection_error"
)

// severityForThreatType is the fixed threat-type -> severity mapping the
// orchestrator uses to label Threat Events.
var severityForThreatType = map[string]ThreatLevel{
	ThreatRateLimitExceeded:         LevelLow,
	ThreatBlacklisted:               LevelCritical,
	ThreatRuleViolation:             LevelMedium,
	ThreatHighThreatScore:           LevelHigh,
	ThreatInvalidMessage:            LevelLow,
	ThreatUnauthorizedCommunication: LevelHigh,
	ThreatInfiniteLoop:              LevelMedium,
	ThreatPromptInjection:           LevelCritical,
	ThreatDataExfiltration:          LevelCritical,
	ThreatMalwareDetected:           LevelCritical,
	ThreatCredentialLeak:            LevelCritical,
	ThreatWebsocketAbuse:            LevelMedium,
	ThreatInspectionError:           LevelUnknown,
}
