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

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/getclawshield/clawshield/internal/authn"
	"github.com/getclawshield/clawshield/internal/firewall"
	"github.com/getclawshield/clawshield/internal/logging"
	"github.com/getclawshield/clawshield/internal/metrics"
	"github.com/getclawshield/clawshield/internal/skill"
	"github.com/getclawshield/clawshield/internal/store"
)

const maxInspectBodyBytes = 2 << 20 // 2 MiB

type handlers struct {
	rel       store.RelationalStore
	orch      *firewall.Orchestrator
	skillOpts skill.Options
	verifier  *authn.Verifier
	conns     *connLimiter
}

func metricsHandler() http.Handler { return promhttp.Handler() }

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type inspectRequestPayload struct {
	AgentID string            `json:"agentId"`
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
	IP      string            `json:"ip"`
}

func (h *handlers) inspectRequest(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxInspectBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}
	var payload inspectRequestPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if err := h.verifier.Verify(bearerToken(r), payload.AgentID); err != nil {
		writeJSON(w, http.StatusUnauthorized, firewall.InspectionResult{Allowed: false, Reason: "Inspection error", ThreatLevel: firewall.LevelUnknown})
		return
	}

	result := h.orch.InspectRequest(r.Context(), firewall.RequestInput{
		AgentID: payload.AgentID,
		Method:  payload.Method,
		Path:    payload.Path,
		Body:    payload.Body,
		Headers: payload.Headers,
		IP:      payload.IP,
	})

	status := http.StatusOK
	if !result.Allowed {
		status = http.StatusForbidden
	}
	writeJSON(w, status, result)
}

func (h *handlers) inspectWS(w http.ResponseWriter, r *http.Request) {
	agentID := authn.AgentID(headersFrom(r))
	if agentID == "" {
		agentID = r.URL.Query().Get("agentId")
	}
	if err := h.verifier.Verify(bearerToken(r), agentID); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ip := clientIP(r)
	if h.conns != nil {
		if !h.conns.acquire(ip) {
			metrics.DeniesByThreatType.WithLabelValues(firewall.ThreatWebsocketAbuse).Inc()
			http.Error(w, "too many concurrent connections from this address", http.StatusTooManyRequests)
			return
		}
		defer h.conns.release(ip)
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	ctx := r.Context()
	wsLog := logging.New("gateway-ws")

	h.orch.Registry().HydrateIfAbsent(agentID, func() *firewall.AgentContext {
		return &firewall.AgentContext{ID: agentID, Status: firewall.StatusActive, PeerIP: ip, ConnectedAt: time.Now()}
	})
	defer h.orch.Registry().Unregister(agentID)

	for {
		_, frame, err := conn.Read(ctx)
		if err != nil {
			return
		}

		result := h.orch.InspectMessage(ctx, agentID, frame)

		reply, err := json.Marshal(result.ToWireReply())
		if err != nil {
			wsLog.Error(agentID, "", "failed to marshal inspection result", nil)
			continue
		}
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		werr := conn.Write(writeCtx, websocket.MessageText, reply)
		cancel()
		if werr != nil {
			return
		}
		// A deny does not close the socket; the per-IP connection limit is
		// the only disconnect-on-policy condition.
	}
}

// clientIP extracts the request's remote address, stripping the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type analyzeSkillPayload struct {
	Code string `json:"code"`
}

func (h *handlers) analyzeSkill(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxInspectBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}
	var payload analyzeSkillPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request: \"code\" is required"})
		return
	}

	hash := skill.GetCodeHash(payload.Code)
	if cached, err := h.rel.GetAnalyzedSkill(r.Context(), hash); err == nil && cached != nil {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	start := time.Now()
	verdict := skill.Analyze(payload.Code, h.skillOpts)
	metrics.SkillAnalysisDuration.WithLabelValues("total").Observe(time.Since(start).Seconds())

	vulns := make([]map[string]interface{}, 0, len(verdict.Static.Vulnerabilities))
	for _, v := range verdict.Static.Vulnerabilities {
		vulns = append(vulns, map[string]interface{}{
			"type":        v.Type,
			"severity":    v.Severity,
			"description": v.Description,
		})
	}
	reason := ""
	if len(verdict.Reasons) > 0 {
		reason = verdict.Reasons[0]
	}
	cacheRow := store.AnalyzedSkill{
		CodeHash:        hash,
		Language:        "javascript",
		Safe:            verdict.Safe,
		RiskScore:       verdict.RiskScore,
		Reason:          reason,
		Vulnerabilities: vulns,
		Patterns:        verdict.Static.Patterns,
		AnalysisTimeMS:  float64(time.Since(start).Milliseconds()),
	}
	if err := h.rel.UpsertAnalyzedSkill(r.Context(), cacheRow); err != nil {
		logging.New("gateway").Warn("", "", "failed to cache skill analysis", map[string]interface{}{"error": err.Error()})
	}

	writeJSON(w, http.StatusOK, cacheRow)
}

func bearerToken(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func headersFrom(r *http.Request) map[string]string {
	out := make(map[string]string, len(r.Header))
	for k := range r.Header {
		out[k] = r.Header.Get(k)
	}
	return out
}
