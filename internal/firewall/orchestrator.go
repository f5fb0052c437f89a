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

// Package firewall implements the Firewall Orchestrator: the fail-closed
// pipeline that evaluates an HTTP request or a single WebSocket message
// against rate limits, a blacklist, a rule engine, a heuristic threat
// scorer, a prompt-injection detector, an agent-to-agent authorization
// check, a message-loop detector, and a data-exfiltration detector.
//
// Detectors are held as capabilities; they never reach back into the
// orchestrator.
package firewall

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/getclawshield/clawshield/internal/alert"
	"github.com/getclawshield/clawshield/internal/crypto"
	"github.com/getclawshield/clawshield/internal/exfil"
	"github.com/getclawshield/clawshield/internal/injection"
	"github.com/getclawshield/clawshield/internal/logging"
	"github.com/getclawshield/clawshield/internal/loopdetect"
	"github.com/getclawshield/clawshield/internal/message"
	"github.com/getclawshield/clawshield/internal/metrics"
	"github.com/getclawshield/clawshield/internal/rules"
	"github.com/getclawshield/clawshield/internal/scorer"
	"github.com/getclawshield/clawshield/internal/store"
)

// Options configures an Orchestrator.
type Options struct {
	RelStore              store.RelationalStore
	KVStore                store.KeyValueStore
	Rules                  *rules.Engine
	Alerts                 *alert.MultiChannel // nil disables alerting
	DefaultRateLimit       int
	ThreatScoreThreshold   float64
	RateLimitTTL           time.Duration
	BlacklistTTL           time.Duration

	// EncryptionKey, when non-empty, seals every Threat Event's details blob
	// with crypto.Encrypt before it reaches RelationalStore.RecordThreat. A
	// nil key leaves details in plaintext, matching a dev/test deployment
	// with no operator-supplied key configured.
	EncryptionKey []byte
}

// Orchestrator drives inspectRequest and inspectMessage.
type Orchestrator struct {
	rel      store.RelationalStore
	kv       store.KeyValueStore
	rules    *rules.Engine
	loops    *loopdetect.Detector
	alerts   *alert.MultiChannel
	registry *Registry
	log      *logging.Logger

	defaultRateLimit int
	scoreThreshold   float64
	rateLimitTTL     time.Duration
	blacklistTTL     time.Duration
	encryptionKey    []byte
}

// New returns an Orchestrator wired from opts.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		rel:              opts.RelStore,
		kv:               opts.KVStore,
		rules:            opts.Rules,
		loops:            loopdetect.NewDetector(opts.KVStore),
		alerts:           opts.Alerts,
		registry:         NewRegistry(),
		log:              logging.New("firewall"),
		defaultRateLimit: opts.DefaultRateLimit,
		scoreThreshold:   opts.ThreatScoreThreshold,
		rateLimitTTL:     opts.RateLimitTTL,
		blacklistTTL:     opts.BlacklistTTL,
		encryptionKey:    opts.EncryptionKey,
	}
}

// Registry exposes the Agent Context registry for callers that need to
// register/unregister agents around a WebSocket connection's lifetime.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// RequestInput is the inbound HTTP surface's metadata.
type RequestInput struct {
	AgentID string
	Method  string
	Path    string
	Body    string
	Headers map[string]string
	IP      string
}

// InspectRequest runs the HTTP-surface pipeline. Any panic anywhere below
// is recovered and mapped to the fail-closed "Inspection error" result.
func (o *Orchestrator) InspectRequest(ctx context.Context, in RequestInput) (result InspectionResult) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error(in.AgentID, "", "inspection panic recovered", map[string]interface{}{"panic": fmt.Sprint(r)})
			result = o.failClosed(ctx, in.AgentID, ThreatInspectionError, map[string]interface{}{"panic": fmt.Sprint(r)})
		}
		metrics.InspectionsTotal.WithLabelValues("http", fmt.Sprint(result.Allowed)).Inc()
	}()

	start := time.Now()
	defer func() { metrics.InspectionDuration.WithLabelValues("http").Observe(time.Since(start).Seconds()) }()

	if in.AgentID != "" {
		if denied, res := o.checkBlacklist(ctx, in.AgentID); denied {
			return res
		}
		if denied, res := o.checkRateLimit(ctx, in.AgentID); denied {
			return res
		}
	}

	evalCtx := rules.Context{
		"method":  in.Method,
		"path":    in.Path,
		"body":    in.Body,
		"content": in.Body,
		"ip":      in.IP,
		"agentId": in.AgentID,
	}
	if in.Headers != nil {
		headerMap := make(map[string]interface{}, len(in.Headers))
		for k, v := range in.Headers {
			headerMap[k] = v
		}
		evalCtx["headers"] = headerMap
	}

	verdict, err := o.rules.Evaluate(ctx, evalCtx)
	if err != nil {
		return o.failClosed(ctx, in.AgentID, ThreatInspectionError, map[string]interface{}{"stage": "rule_engine", "error": err.Error()})
	}
	if !verdict.Allowed {
		o.recordThreat(ctx, in.AgentID, ThreatRuleViolation, map[string]interface{}{"method": in.Method, "path": in.Path})
		level := LevelMedium
		if verdict.Level != "" {
			level = ThreatLevel(verdict.Level)
		}
		return InspectionResult{Allowed: false, Reason: verdict.Reason, ThreatLevel: level}
	}

	requestCount := 0
	if actx := o.registry.Get(in.AgentID); actx != nil {
		requestCount = int(actx.RequestCount)
	}
	scoreResult := scorer.Score(scorer.Input{
		Body:         in.Body,
		Path:         in.Path,
		Headers:      in.Headers,
		RequestCount: requestCount,
	})
	metrics.ThreatScore.Observe(scoreResult.Score)

	threshold := o.scoreThreshold
	if threshold == 0 {
		threshold = 0.8
	}
	if scoreResult.Score > threshold {
		o.recordThreat(ctx, in.AgentID, ThreatHighThreatScore, map[string]interface{}{"score": scoreResult.Score, "factors": scoreResult.Factors})
		return InspectionResult{Allowed: false, Reason: "High threat score detected", ThreatLevel: LevelHigh, ThreatScore: &scoreResult.Score}
	}

	if in.AgentID != "" {
		o.registry.HydrateIfAbsent(in.AgentID, func() *AgentContext {
			return &AgentContext{ID: in.AgentID, Status: StatusActive, MaxRequestsPerMin: o.defaultRateLimit}
		})
		o.registry.Touch(in.AgentID, time.Now())
	}

	return InspectionResult{Allowed: true, ThreatScore: &scoreResult.Score}
}

// InspectMessage runs the WebSocket-surface pipeline against a raw JSON
// frame.
func (o *Orchestrator) InspectMessage(ctx context.Context, agentID string, raw []byte) (result InspectionResult) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error(agentID, "", "inspection panic recovered", map[string]interface{}{"panic": fmt.Sprint(r)})
			result = o.failClosed(ctx, agentID, ThreatInspectionError, map[string]interface{}{"panic": fmt.Sprint(r)})
		}
		metrics.InspectionsTotal.WithLabelValues("websocket", fmt.Sprint(result.Allowed)).Inc()
	}()

	start := time.Now()
	defer func() { metrics.InspectionDuration.WithLabelValues("websocket").Observe(time.Since(start).Seconds()) }()

	msg, err := message.Parse(raw)
	if err != nil {
		o.recordThreat(ctx, agentID, ThreatInvalidMessage, map[string]interface{}{"error": err.Error()})
		return InspectionResult{Allowed: false, Reason: "Invalid message format", ThreatLevel: LevelLow}
	}

	targetAgentID := ""
	if msg.TargetAgentID != nil {
		targetAgentID = *msg.TargetAgentID
	}
	content := ""
	if msg.Content != nil {
		content = *msg.Content
	}

	if (msg.Type == message.SessionsSend || msg.Type == message.SessionsSpawn) && targetAgentID != "" {
		rule, err := o.rel.CommunicationRule(ctx, agentID, targetAgentID)
		if err != nil {
			return o.failClosed(ctx, agentID, ThreatInspectionError, map[string]interface{}{"stage": "communication_rule", "error": err.Error()})
		}
		if rule == nil || !rule.Enabled {
			o.recordThreat(ctx, agentID, ThreatUnauthorizedCommunication, map[string]interface{}{"targetAgentId": targetAgentID})
			return InspectionResult{Allowed: false, Reason: "Unauthorized agent-to-agent communication", ThreatLevel: LevelHigh}
		}
	}

	looped, err := o.loops.Check(ctx, agentID, string(msg.Type), content, targetAgentID)
	if err != nil {
		return o.failClosed(ctx, agentID, ThreatInspectionError, map[string]interface{}{"stage": "loop_detector", "error": err.Error()})
	}
	if looped {
		o.recordThreat(ctx, agentID, ThreatInfiniteLoop, map[string]interface{}{"type": string(msg.Type)})
		return InspectionResult{Allowed: false, Reason: "Infinite loop detected", ThreatLevel: LevelMedium}
	}

	if content != "" {
		injResult := injection.Detect(content)
		if injResult.Detected {
			details := map[string]interface{}{"patterns": injResult.Patterns, "confidence": injResult.Confidence}
			if len(content) > 200 {
				details["content_excerpt"] = content[:200]
			} else {
				details["content_excerpt"] = content
			}
			o.recordThreat(ctx, agentID, ThreatPromptInjection, details)
			return InspectionResult{Allowed: false, Reason: "Prompt injection detected", ThreatLevel: LevelCritical}
		}
	}

	if msg.Type == message.APICall {
		trustedDomains := []string{}
		if actx := o.registry.Get(agentID); actx != nil {
			trustedDomains = actx.TrustedDomains
		}
		rawURL := ""
		if msg.URL != nil {
			rawURL = *msg.URL
		}
		body := ""
		if msg.Body != nil {
			body = *msg.Body
		}
		if exfil.Check(rawURL, body, trustedDomains) {
			o.recordThreat(ctx, agentID, ThreatDataExfiltration, map[string]interface{}{"url": rawURL})
			return InspectionResult{Allowed: false, Reason: "Data exfiltration detected", ThreatLevel: LevelCritical}
		}
	}

	return InspectionResult{Allowed: true}
}

func (o *Orchestrator) checkRateLimit(ctx context.Context, agentID string) (bool, InspectionResult) {
	limit := o.defaultRateLimit
	if actx := o.registry.Get(agentID); actx != nil && actx.MaxRequestsPerMin > 0 {
		limit = actx.MaxRequestsPerMin
	} else if row, err := o.rel.GetAgent(ctx, agentID); err == nil && row != nil && row.MaxRequestsPerMinute > 0 {
		limit = row.MaxRequestsPerMinute
	}

	count, err := o.kv.IncrRateLimit(ctx, agentID, o.rateLimitTTL)
	if err != nil {
		return true, o.failClosed(ctx, agentID, ThreatInspectionError, map[string]interface{}{"stage": "rate_limit", "error": err.Error()})
	}
	if int(count) > limit {
		o.recordThreat(ctx, agentID, ThreatRateLimitExceeded, map[string]interface{}{"count": count, "limit": limit})
		return true, InspectionResult{Allowed: false, Reason: "Rate limit exceeded", ThreatLevel: LevelMedium}
	}
	return false, InspectionResult{}
}

func (o *Orchestrator) checkBlacklist(ctx context.Context, agentID string) (bool, InspectionResult) {
	blacklisted, err := o.kv.IsBlacklisted(ctx, agentID)
	if err != nil {
		return true, o.failClosed(ctx, agentID, ThreatInspectionError, map[string]interface{}{"stage": "blacklist", "error": err.Error()})
	}
	if blacklisted {
		o.recordThreat(ctx, agentID, ThreatBlacklisted, nil)
		return true, InspectionResult{Allowed: false, Reason: "Agent is blacklisted", ThreatLevel: LevelCritical}
	}
	return false, InspectionResult{}
}

// sealDetails encrypts details under o.encryptionKey before it is handed to
// RelationalStore.RecordThreat, so raw agent-submitted content never reaches
// the threats table in plaintext. With no key configured, details passes
// through unchanged.
func (o *Orchestrator) sealDetails(agentID string, details map[string]interface{}) map[string]interface{} {
	if len(o.encryptionKey) == 0 || details == nil {
		return details
	}
	raw, err := json.Marshal(details)
	if err != nil {
		o.log.Warn(agentID, "", "failed to encode threat details for encryption", map[string]interface{}{"error": err.Error()})
		return details
	}
	sealed, err := crypto.Encrypt(raw, o.encryptionKey)
	if err != nil {
		o.log.Warn(agentID, "", "failed to encrypt threat details", map[string]interface{}{"error": err.Error()})
		return details
	}
	return map[string]interface{}{"ciphertext": base64.StdEncoding.EncodeToString(sealed)}
}

// failClosed maps any internal error to the fail-closed Inspection Result,
// best-effort-recording a Threat Event for it.
func (o *Orchestrator) failClosed(ctx context.Context, agentID, threatType string, details map[string]interface{}) InspectionResult {
	o.recordThreat(ctx, agentID, threatType, details)
	return InspectionResult{Allowed: false, Reason: "Inspection error", ThreatLevel: LevelUnknown}
}

// recordThreat persists a Threat Event and, for critical severity, fans it
// out to the alert handler. Both failure modes are logged and swallowed.
func (o *Orchestrator) recordThreat(ctx context.Context, agentID, threatType string, details map[string]interface{}) {
	severity := severityForThreatType[threatType]
	if severity == "" {
		severity = LevelUnknown
	}

	metrics.DeniesByThreatType.WithLabelValues(threatType).Inc()

	event := store.ThreatEvent{
		ID:         uuid.NewString(),
		AgentID:    agentID,
		ThreatType: threatType,
		Severity:   string(severity),
		Details:    o.sealDetails(agentID, details),
		CreatedAt:  time.Now(),
	}
	if err := o.rel.RecordThreat(ctx, event); err != nil {
		o.log.Warn(agentID, "", "failed to persist threat event", map[string]interface{}{"error": err.Error(), "threat_type": threatType})
	}

	if severity == LevelCritical && o.alerts != nil {
		o.alerts.Send(ctx, alert.Event{
			Type:       "threat_detected",
			AgentID:    agentID,
			ThreatType: threatType,
			Details:    details,
			Timestamp:  time.Now(),
		})
	}
}
