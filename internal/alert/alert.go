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

// Package alert delivers best-effort critical-severity notifications to
// one or more webhook channels. A failure on any channel is logged and
// swallowed; it never turns a deny into an allow, nor vice versa.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/getclawshield/clawshield/internal/logging"
)

// Event is the payload delivered to an alert Handler.
type Event struct {
	Type       string                 `json:"type"`
	AgentID    string                 `json:"agentId"`
	ThreatType string                 `json:"threatType"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Handler delivers a single alert Event. Implementations must not block
// the caller for longer than a short, bounded duration.
type Handler interface {
	Send(ctx context.Context, event Event) error
}

// MultiChannel fans an Event out to every configured Handler concurrently,
// logging and discarding any individual failure.
type MultiChannel struct {
	handlers []Handler
	log      *logging.Logger
}

// NewMultiChannel returns a MultiChannel delivering to every handler given.
func NewMultiChannel(handlers ...Handler) *MultiChannel {
	return &MultiChannel{handlers: handlers, log: logging.New("alert")}
}

// Send dispatches event to every channel; it never returns an error, since
// alert-handler failures must never surface to the firewall's deny path.
func (m *MultiChannel) Send(ctx context.Context, event Event) {
	for _, h := range m.handlers {
		go func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error(event.AgentID, "", "alert handler panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
				}
			}()
			if err := h.Send(ctx, event); err != nil {
				m.log.Warn(event.AgentID, "", "alert handler failed", map[string]interface{}{"error": err.Error()})
			}
		}(h)
	}
}

// WebhookHandler posts the Event as JSON to a fixed URL.
type WebhookHandler struct {
	URL    string
	Client *http.Client
}

// NewWebhookHandler returns a WebhookHandler posting to url with a 5s
// client timeout.
func NewWebhookHandler(url string) *WebhookHandler {
	return &WebhookHandler{URL: url, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (w *WebhookHandler) Send(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("alert: encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("alert: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("alert: webhook delivery failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
