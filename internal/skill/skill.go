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

// Package skill implements the Skill Analyzer: the static, prompt-injection,
// dynamic-sandbox, and malware-signature pipeline that produces a bounded
// risk score for a candidate piece of agent-installable skill code.
package skill

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/getclawshield/clawshield/internal/injection"
	"github.com/getclawshield/clawshield/internal/skill/dynamic"
	"github.com/getclawshield/clawshield/internal/skill/static"
)

const (
	injectionUnsafeThreshold = 0.7
	riskUnsafeThreshold      = 0.5

	weightStaticCritical = 0.5
	weightStaticHigh     = 0.3
	weightStaticMedium   = 0.15
	weightStaticLow      = 0.05
	weightStaticInfo     = 0.0

	weightDynamicNetwork    = 0.1
	weightDynamicFS         = 0.1
	weightDynamicSuspicious = 0.15
	weightInjection         = 0.3
)

// Options configures one Analyze call.
type Options struct {
	DynamicTimeout time.Duration
	Signatures     []Signature
}

// DefaultOptions returns the seed signature table and a 2s dynamic-sandbox
// budget, suitable when the caller has no rules-bootstrap override.
func DefaultOptions() Options {
	return Options{DynamicTimeout: 2 * time.Second, Signatures: defaultSignatures}
}

// Verdict is the fused result of every analysis stage that ran. Stages after
// an early-unsafe exit are left at their zero value; callers should treat a
// nil/zero stage field as "not reached", not as "found nothing".
type Verdict struct {
	Safe         bool
	RiskScore    float64
	Reasons      []string
	CodeHash     string
	MalwareMatch string
	Static       static.Result
	Injection    injection.Result
	Dynamic      dynamic.Result
}

// GetCodeHash returns the lowercase hex SHA-256 digest of code's UTF-8
// bytes, the identity used to key analyzed_skills and match signatures.
func GetCodeHash(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// Analyze runs the full pipeline: static analysis first (a critical finding
// exits immediately), then prompt-injection detection on the raw source,
// then dynamic sandbox execution, then malware-signature matching, and
// finally a weighted fusion of everything observed into a single bounded
// risk score.
func Analyze(code string, opts Options) Verdict {
	hash := GetCodeHash(code)
	var reasons []string

	staticResult := static.Analyze(code)
	if staticResult.Severity == static.SeverityCritical {
		return Verdict{
			Safe:      false,
			RiskScore: 1.0,
			Reasons:   append(reasons, "critical static finding"),
			CodeHash:  hash,
			Static:    staticResult,
		}
	}

	injectionResult := injection.Detect(code)
	if injectionResult.Confidence > injectionUnsafeThreshold {
		return Verdict{
			Safe:      false,
			RiskScore: 0.9,
			Reasons:   append(reasons, "prompt injection detected in source"),
			CodeHash:  hash,
			Static:    staticResult,
			Injection: injectionResult,
		}
	}

	dynamicResult := dynamic.Execute(code, opts.DynamicTimeout)
	if !dynamicResult.Safe {
		reasons = append(reasons, "unsafe behavior observed during dynamic execution")
	}

	if name, matched := matchSignature(hash, code, opts.Signatures); matched {
		return Verdict{
			Safe:         false,
			RiskScore:    1.0,
			Reasons:      append(reasons, "malware signature match: "+name),
			CodeHash:     hash,
			MalwareMatch: name,
			Static:       staticResult,
			Injection:    injectionResult,
			Dynamic:      dynamicResult,
		}
	}

	score := 0.0
	for _, v := range staticResult.Vulnerabilities {
		score += staticWeight(v.Severity)
	}
	if len(dynamicResult.NetworkAttempts) > 0 {
		score += weightDynamicNetwork
	}
	if len(dynamicResult.FSAttempts) > 0 {
		score += weightDynamicFS
	}
	if len(dynamicResult.SuspiciousBehavior) > 0 {
		score += weightDynamicSuspicious
	}
	score += injectionResult.Confidence * weightInjection
	if score > 1.0 {
		score = 1.0
	}

	return Verdict{
		Safe:      score < riskUnsafeThreshold,
		RiskScore: score,
		Reasons:   reasons,
		CodeHash:  hash,
		Static:    staticResult,
		Injection: injectionResult,
		Dynamic:   dynamicResult,
	}
}

func staticWeight(sev static.Severity) float64 {
	switch sev {
	case static.SeverityCritical:
		return weightStaticCritical
	case static.SeverityHigh:
		return weightStaticHigh
	case static.SeverityMedium:
		return weightStaticMedium
	case static.SeverityLow:
		return weightStaticLow
	default:
		return weightStaticInfo
	}
}
