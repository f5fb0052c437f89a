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

// Package rules implements the Rule Engine: an ordered, cached list of
// declarative conditions evaluated against a field-addressable context.
package rules

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getclawshield/clawshield/internal/logging"
	"github.com/getclawshield/clawshield/internal/metrics"
	"github.com/getclawshield/clawshield/internal/store"
)

// Context is the evaluation context a caller builds for one request or
// message. Extension keys are permitted; unknown field paths resolve to
// "undefined" and never match.
type Context map[string]interface{}

// Verdict is the outcome of evaluating the ordered rule list.
type Verdict struct {
	Allowed bool
	Reason  string
	Level   string // only set when Allowed is false
}

// Engine evaluates the cached, priority-ordered rule list against a
// Context. A single Engine is safe for concurrent use.
type Engine struct {
	store store.RelationalStore
	log   *logging.Logger
	ttl   time.Duration

	mu          sync.RWMutex
	rules       []store.FirewallRule
	lastRefresh time.Time

	badRegexOnce sync.Map // rule ID + ":" + pattern -> struct{}, logged once per rule lifetime
}

// NewEngine returns an Engine that refreshes from st at most once per ttl.
func NewEngine(st store.RelationalStore, ttl time.Duration) *Engine {
	return &Engine{store: st, log: logging.New("rules"), ttl: ttl}
}

// Evaluate refreshes the rule cache if stale, then evaluates rules in
// ascending priority order, returning on the first terminal (allow/deny)
// match. A matching conditional rule is logged and evaluation continues.
// When no rule terminally matches, the default is allow.
func (e *Engine) Evaluate(ctx context.Context, c Context) (Verdict, error) {
	rules, err := e.currentRules(ctx)
	if err != nil {
		return Verdict{}, fmt.Errorf("rules: evaluate: %w", err)
	}

	for _, rule := range rules {
		if !e.matches(rule, c) {
			continue
		}
		switch rule.Kind {
		case store.RuleDeny:
			reason := rule.Action.Message
			if reason == "" {
				reason = fmt.Sprintf("Blocked by rule: %s", rule.Name)
			}
			return Verdict{Allowed: false, Reason: reason, Level: "medium"}, nil
		case store.RuleAllow:
			return Verdict{Allowed: true}, nil
		case store.RuleConditional:
			e.log.Info("", "", "conditional rule matched", map[string]interface{}{"rule_id": rule.ID, "rule_name": rule.Name})
			continue
		}
	}
	return Verdict{Allowed: true}, nil
}

func (e *Engine) currentRules(ctx context.Context) ([]store.FirewallRule, error) {
	e.mu.RLock()
	fresh := !e.lastRefresh.IsZero() && time.Since(e.lastRefresh) < e.ttl
	rules := e.rules
	e.mu.RUnlock()
	if fresh {
		return rules, nil
	}

	metrics.RuleCacheRefreshes.Inc()
	loaded, err := e.store.LoadEnabledRules(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(loaded, func(i, j int) bool { return loaded[i].Priority < loaded[j].Priority })

	e.mu.Lock()
	e.rules = loaded
	e.lastRefresh = time.Now()
	e.mu.Unlock()

	return loaded, nil
}

// matches reports whether every condition of rule holds (AND).
func (e *Engine) matches(rule store.FirewallRule, c Context) bool {
	for _, cond := range rule.Conditions {
		if !e.evaluateCondition(rule.ID, cond, c) {
			return false
		}
	}
	return true
}

func (e *Engine) evaluateCondition(ruleID string, cond store.Condition, c Context) bool {
	fieldVal, ok := fieldValue(c, cond.Field)
	if !ok {
		return false
	}
	fieldStr := toString(fieldVal)

	switch cond.Operator {
	case store.OpEq:
		return fieldStr == toString(cond.Value)
	case store.OpNeq:
		return fieldStr != toString(cond.Value)
	case store.OpContains:
		return strings.Contains(fieldStr, toString(cond.Value))
	case store.OpRegex:
		pattern := toString(cond.Value)
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			if _, logged := e.badRegexOnce.LoadOrStore(ruleID+":"+pattern, struct{}{}); !logged {
				e.log.Warn("", "", "invalid regex condition, treating as no match", map[string]interface{}{
					"rule_id": ruleID, "pattern": pattern, "error": err.Error(),
				})
			}
			return false
		}
		return re.MatchString(fieldStr)
	case store.OpGT, store.OpLT:
		left, lok := toFloat64(fieldVal)
		right, rok := toFloat64(cond.Value)
		if !lok || !rok {
			return false
		}
		if cond.Operator == store.OpGT {
			return left > right
		}
		return left < right
	case store.OpIn:
		list, ok := cond.Value.([]interface{})
		if !ok {
			return false
		}
		for _, item := range list {
			if toString(item) == fieldStr {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// fieldValue resolves a dotted field path by nested lookup. Absent paths
// report ok=false, which never matches any operator.
func fieldValue(c Context, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var cur interface{} = map[string]interface{}(c)
	for _, p := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

func toFloat64(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
