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

package gateway

import "sync"

// maxConnsPerIP is the only disconnect-on-policy condition the WebSocket
// surface enforces: a 6th concurrent connection from the same IP is
// rejected before the upgrade completes.
const maxConnsPerIP = 5

// connLimiter tracks concurrent WebSocket connections per client IP,
// in-process, decremented on socket close.
type connLimiter struct {
	mu     sync.Mutex
	counts map[string]int
}

func newConnLimiter() *connLimiter {
	return &connLimiter{counts: map[string]int{}}
}

// acquire reports whether ip is under maxConnsPerIP and, if so, reserves a
// slot for it.
func (c *connLimiter) acquire(ip string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts[ip] >= maxConnsPerIP {
		return false
	}
	c.counts[ip]++
	return true
}

// release frees the slot acquire reserved for ip.
func (c *connLimiter) release(ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts[ip] <= 1 {
		delete(c.counts, ip)
		return
	}
	c.counts[ip]--
}
