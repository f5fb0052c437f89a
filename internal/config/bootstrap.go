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

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/getclawshield/clawshield/internal/skill"
	"github.com/getclawshield/clawshield/internal/store"
)

func compileSignaturePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(pattern)
}

// Bootstrap is the default rule set and malware signature table loaded from
// RulesBootstrapPath. The gateway appends Signatures to the skill analyzer's
// built-in signature table. Rules are parsed and returned, but nothing
// applies them: the rule engine reads rules only from the relational store.
type Bootstrap struct {
	Rules      []store.FirewallRule
	Signatures []skill.Signature
}

type bootstrapRuleYAML struct {
	ID          string                 `yaml:"id"`
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description"`
	Kind        string                 `yaml:"kind"`
	Priority    int                    `yaml:"priority"`
	Enabled     bool                   `yaml:"enabled"`
	Conditions  []bootstrapConditionYAML `yaml:"conditions"`
	Action      bootstrapActionYAML    `yaml:"action"`
}

type bootstrapConditionYAML struct {
	Field    string      `yaml:"field"`
	Operator string      `yaml:"operator"`
	Value    interface{} `yaml:"value"`
}

type bootstrapActionYAML struct {
	Kind     string `yaml:"kind"`
	Message  string `yaml:"message"`
	Duration int    `yaml:"duration"`
}

type bootstrapSignatureYAML struct {
	Name    string `yaml:"name"`
	SHA256  string `yaml:"sha256"`
	Pattern string `yaml:"pattern"`
}

type bootstrapFileYAML struct {
	Rules      []bootstrapRuleYAML     `yaml:"rules"`
	Signatures []bootstrapSignatureYAML `yaml:"signatures"`
}

// LoadBootstrap reads and parses path. A blank path is not an error: it
// returns an empty Bootstrap, letting the gateway run with whatever is
// already in the database and the package's built-in signature seed.
func LoadBootstrap(path string) (*Bootstrap, error) {
	if path == "" {
		return &Bootstrap{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading bootstrap file: %w", err)
	}
	var doc bootstrapFileYAML
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing bootstrap file: %w", err)
	}

	out := &Bootstrap{}
	for _, r := range doc.Rules {
		conditions := make([]store.Condition, 0, len(r.Conditions))
		for _, c := range r.Conditions {
			conditions = append(conditions, store.Condition{
				Field:    c.Field,
				Operator: store.Operator(c.Operator),
				Value:    c.Value,
			})
		}
		out.Rules = append(out.Rules, store.FirewallRule{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			Kind:        store.RuleKind(r.Kind),
			Priority:    r.Priority,
			Enabled:     r.Enabled,
			Conditions:  conditions,
			Action: store.Action{
				Kind:     store.ActionKind(r.Action.Kind),
				Message:  r.Action.Message,
				Duration: r.Action.Duration,
			},
		})
	}
	for _, s := range doc.Signatures {
		sig := skill.Signature{Name: s.Name, SHA256: s.SHA256}
		if s.Pattern != "" {
			compiled, err := compileSignaturePattern(s.Pattern)
			if err != nil {
				return nil, fmt.Errorf("config: signature %q: %w", s.Name, err)
			}
			sig.Pattern = compiled
		}
		out.Signatures = append(out.Signatures, sig)
	}
	return out, nil
}
