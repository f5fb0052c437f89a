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
	"time"
)

// RelationalStore is the persistence-layer contract the firewall consumes
// for agents, rules, and threat events. Implementations must be safe for
// concurrent use.
type RelationalStore interface {
	// GetAgent loads an agent row by identifier, or (nil, nil) if unknown.
	GetAgent(ctx context.Context, agentID string) (*AgentRow, error)

	// CommunicationRule looks up an enabled communication rule between
	// source and target, or (nil, nil) if none exists.
	CommunicationRule(ctx context.Context, sourceAgentID, targetAgentID string) (*CommunicationRule, error)

	// LoadEnabledRules returns every enabled firewall rule, unordered; the
	// caller (the Rule Engine) is responsible for priority-sorting.
	LoadEnabledRules(ctx context.Context) ([]FirewallRule, error)

	// RecordThreat appends a Threat Event.
	RecordThreat(ctx context.Context, event ThreatEvent) error

	// UpsertAnalyzedSkill stores or replaces a skill-analysis cache row.
	UpsertAnalyzedSkill(ctx context.Context, skill AnalyzedSkill) error

	// GetAnalyzedSkill returns a previously cached analysis, or (nil, nil)
	// if the hash is unknown.
	GetAnalyzedSkill(ctx context.Context, codeHash string) (*AnalyzedSkill, error)

	// Close releases underlying resources.
	Close() error
}

// KeyValueStore is the persistence-layer contract for rate counters,
// blacklist membership, and loop-detection windows.
type KeyValueStore interface {
	// IncrRateLimit atomically increments agent:ratelimit:<agentID>,
	// arming a ttl expiration on the key's first increment, and returns
	// the counter's new value.
	IncrRateLimit(ctx context.Context, agentID string, ttl time.Duration) (int64, error)

	// IsBlacklisted reports whether agent:blacklist:<agentID> exists.
	IsBlacklisted(ctx context.Context, agentID string) (bool, error)

	// Blacklist sets agent:blacklist:<agentID> with the given ttl.
	Blacklist(ctx context.Context, agentID string, ttl time.Duration) error

	// RecentMessages returns the current fingerprint deque for agentID,
	// most-recent first.
	RecentMessages(ctx context.Context, agentID string) ([]string, error)

	// PushMessage prepends fingerprint to agent:messages:<agentID>, trims
	// it to maxLen entries, and re-arms ttl.
	PushMessage(ctx context.Context, agentID, fingerprint string, maxLen int, ttl time.Duration) error

	// IsBadIP reports membership in threat:bad_ips.
	IsBadIP(ctx context.Context, ip string) (bool, error)

	// IsBadDomain reports membership in threat:bad_domains.
	IsBadDomain(ctx context.Context, domain string) (bool, error)

	// Close releases underlying resources.
	Close() error
}
