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
	"sync"
	"time"
)

// Registry is the process-wide Agent Context table. It is exclusively
// owned by the firewall orchestrator, which reads and writes through it;
// every other component only ever receives a *AgentContext by reference.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*AgentContext
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*AgentContext)}
}

// Get returns the Agent Context for id, or nil if it has not been
// registered or hydrated yet.
func (r *Registry) Get(id string) *AgentContext {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// Register inserts ctx idempotently: on repeated identical registration,
// existing RequestCount, CreatedAt, ThreatScore, RecentMessages, and
// TrustedDomains are preserved when the incoming ctx omits them (zero
// value / nil).
func (r *Registry) Register(id string, ctx *AgentContext) *AgentContext {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[id]
	if !ok {
		if ctx.CreatedAt.IsZero() {
			ctx.CreatedAt = time.Now()
		}
		r.byID[id] = ctx
		return ctx
	}

	merged := *existing
	if ctx.Name != "" {
		merged.Name = ctx.Name
	}
	if ctx.Status != "" {
		merged.Status = ctx.Status
	}
	if ctx.Permissions != nil {
		merged.Permissions = ctx.Permissions
	}
	if ctx.TrustedDomains != nil {
		merged.TrustedDomains = ctx.TrustedDomains
	}
	if ctx.MaxRequestsPerMin != 0 {
		merged.MaxRequestsPerMin = ctx.MaxRequestsPerMin
	}
	if ctx.PeerIP != "" {
		merged.PeerIP = ctx.PeerIP
	}
	if !ctx.ConnectedAt.IsZero() {
		merged.ConnectedAt = ctx.ConnectedAt
	}
	// RequestCount, CreatedAt, ThreatScore, RecentMessages are preserved
	// from the existing entry unconditionally: only the orchestrator's own
	// bookkeeping mutates them.
	r.byID[id] = &merged
	return &merged
}

// Unregister removes id's Agent Context.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// Touch bumps RequestCount and LastSeen for id under a single write lock.
// An unknown id is ignored.
func (r *Registry) Touch(id string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ctx, ok := r.byID[id]; ok {
		ctx.RequestCount++
		ctx.LastSeen = now
	}
}

// HydrateIfAbsent registers a freshly-constructed AgentContext for id only
// if none exists yet, then returns the (possibly pre-existing) entry.
func (r *Registry) HydrateIfAbsent(id string, build func() *AgentContext) *AgentContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byID[id]; ok {
		return existing
	}
	ctx := build()
	if ctx.CreatedAt.IsZero() {
		ctx.CreatedAt = time.Now()
	}
	r.byID[id] = ctx
	return ctx
}
