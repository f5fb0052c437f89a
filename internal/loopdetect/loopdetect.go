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

// Package loopdetect implements the Loop Detector: a rolling per-agent
// fingerprint window that flags message repetition.
package loopdetect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/getclawshield/clawshield/internal/store"
)

const (
	windowSize     = 10
	windowTTL      = 300 * time.Second
	loopThreshold  = 3
	fingerprintLen = 16
)

// Detector flags agents whose recent messages repeat.
type Detector struct {
	kv store.KeyValueStore
}

// NewDetector returns a Detector backed by kv.
func NewDetector(kv store.KeyValueStore) *Detector {
	return &Detector{kv: kv}
}

// Fingerprint is the 16-hex-character SHA-256 digest of the canonical
// serialization of a message's identifying fields.
func Fingerprint(msgType, content, targetAgentID string) string {
	canonical := fmt.Sprintf("%s|%s|%s", msgType, content, targetAgentID)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

// Check reads the agent's current deque, counts exact matches for the new
// fingerprint, prepends it, trims to windowSize, re-arms the TTL, and
// reports whether at least loopThreshold prior matches were observed.
func (d *Detector) Check(ctx context.Context, agentID, msgType, content, targetAgentID string) (bool, error) {
	fp := Fingerprint(msgType, content, targetAgentID)

	existing, err := d.kv.RecentMessages(ctx, agentID)
	if err != nil {
		return false, fmt.Errorf("loopdetect: check: %w", err)
	}

	matches := 0
	for _, e := range existing {
		if e == fp {
			matches++
		}
	}

	if err := d.kv.PushMessage(ctx, agentID, fp, windowSize, windowTTL); err != nil {
		return false, fmt.Errorf("loopdetect: check: %w", err)
	}

	return matches >= loopThreshold, nil
}
