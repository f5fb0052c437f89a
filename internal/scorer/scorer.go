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

// Package scorer computes the bounded, monotone, order-invariant composite
// threat score from a fixed table of weighted patterns.
package scorer

import (
	"regexp"
	"strings"
)

// pattern is one weighted body/path regex.
type pattern struct {
	Name   string
	Weight float64
	Regex  *regexp.Regexp
}

// sharedPatterns is matched against both the body and the path; body hits
// are reported under the bare name, path hits under a path_-prefixed factor
// name per spec, never under the bare name.
var sharedPatterns = []pattern{
	{"path_traversal", 0.3, regexp.MustCompile(`\.\./`)},
	{"xss_attempt", 0.4, regexp.MustCompile(`(?i)<script[^>]*>`)},
	{"sql_injection", 0.5, regexp.MustCompile(`(?i)union\s+select`)},
	{"sql_drop", 0.9, regexp.MustCompile(`(?i);\s*drop\s+table`)},
	{"template_injection", 0.3, regexp.MustCompile(`\$\{.*\}`)},
	{"env_access", 0.4, regexp.MustCompile(`(?i)process\.env`)},
	{"command_exec", 0.6, regexp.MustCompile(`(?i)child_process`)},
	{"require_child_process", 0.8, regexp.MustCompile(`(?i)require\s*\(\s*['"]child_process['"]\s*\)`)},
	{"exec_call", 0.5, regexp.MustCompile(`(?i)exec\s*\(`)},
}

var suspiciousHeaders = map[string]bool{
	"x-forwarded-host": true,
	"x-original-url":   true,
	"x-rewrite-url":    true,
}

// Input carries every field the scorer consults. All fields are optional;
// zero values simply fail to trigger their factors.
type Input struct {
	Body              string
	Path              string
	Headers           map[string]string
	RequestCount      int
	TimeSinceLastReq  int64 // milliseconds; only consulted when HasTimeSinceLast is true
	HasTimeSinceLast  bool
}

// Result is the scorer's output: the bounded composite score and the set
// of factor names that triggered.
type Result struct {
	Score   float64
	Factors []string
}

// Score computes the composite threat score for in. Each pattern, each
// regex check is stateless (a fresh *regexp.Regexp per package init,
// MatchString carries no mutable state across calls).
func Score(in Input) Result {
	var factors []string
	score := 0.0

	trigger := func(weight float64, name string) {
		score = score + weight*(1-score)
		factors = append(factors, name)
	}

	for _, p := range sharedPatterns {
		if p.Regex.MatchString(in.Body) {
			trigger(p.Weight, p.Name)
		}
	}
	for _, p := range sharedPatterns {
		if p.Regex.MatchString(in.Path) {
			trigger(p.Weight, "path_"+p.Name)
		}
	}

	for name := range in.Headers {
		if suspiciousHeaders[strings.ToLower(name)] {
			trigger(0.2, "suspicious_header")
			break
		}
	}

	if in.HasTimeSinceLast && in.RequestCount > 50 && in.TimeSinceLastReq < 1000 {
		trigger(0.3, "rate_anomaly")
	}

	if len(in.Body) > 500_000 {
		trigger(0.2, "large_payload")
	}

	return Result{Score: score, Factors: factors}
}
