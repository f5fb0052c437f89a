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

// Package scrubber implements the Response Scrubber: a post-proxy scan for
// credential patterns, insecure headers, stack traces, and infra leaks.
// It reports a list of issues; the caller decides whether to surface or
// block.
package scrubber

import (
	"regexp"
	"strings"
)

var credentialPatterns = []struct {
	Name  string
	Regex *regexp.Regexp
}{
	{"generic_api_key", regexp.MustCompile(`(?i)api[_-]?key['"]?\s*[:=]\s*['"]?[A-Za-z0-9_\-]{8,}`)},
	{"generic_password", regexp.MustCompile(`(?i)password\s*[:=]\s*['"]?\S{4,}`)},
	{"generic_secret", regexp.MustCompile(`(?i)secret\s*[:=]\s*['"]?[A-Za-z0-9_\-]{8,}`)},
	{"generic_token", regexp.MustCompile(`(?i)token\s*[:=]\s*['"]?[A-Za-z0-9_\-.]{8,}`)},
	{"aws_access_key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"aws_secret_key", regexp.MustCompile(`(?i)aws_secret_access_key\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}`)},
	{"stripe_key", regexp.MustCompile(`\bsk-[A-Za-z0-9]{8,}|\b(pk_live|pk_test|rk_live|rk_test)_[A-Za-z0-9]{8,}`)},
	{"github_token", regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{20,}`)},
	{"pem_private_key", regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)},
}

var stackTraceFrame = regexp.MustCompile(`\bat\s+\S+\s+\(.*:\d+:\d+\)`)
var infraErrorNames = regexp.MustCompile(`ECONNREFUSED|ENOTFOUND|ETIMEDOUT`)

var knownServerProducts = []string{"nginx", "apache", "iis", "express"}

// Issue is one scrubber finding.
type Issue struct {
	Kind    string
	Detail  string
}

// Scan inspects headers (case-insensitive keys), the optional body, and
// statusCode, returning every issue found.
func Scan(headers map[string]string, body string, statusCode int) []Issue {
	var issues []Issue

	for _, p := range credentialPatterns {
		if p.Regex.MatchString(body) {
			issues = append(issues, Issue{Kind: "credential_leak", Detail: p.Name})
		}
	}

	h := lowerKeys(headers)

	if v, ok := h["access-control-allow-origin"]; ok && v == "*" {
		issues = append(issues, Issue{Kind: "insecure_cors", Detail: "Access-Control-Allow-Origin: *"})
	}
	if _, ok := h["x-content-type-options"]; !ok {
		issues = append(issues, Issue{Kind: "missing_header", Detail: "X-Content-Type-Options"})
	}
	_, hasFrameOptions := h["x-frame-options"]
	_, hasCSP := h["content-security-policy"]
	if !hasFrameOptions && !hasCSP {
		issues = append(issues, Issue{Kind: "missing_header", Detail: "X-Frame-Options or Content-Security-Policy"})
	}
	if v, ok := h["server"]; ok {
		lower := strings.ToLower(v)
		for _, product := range knownServerProducts {
			if strings.Contains(lower, product) {
				issues = append(issues, Issue{Kind: "server_header_leak", Detail: v})
				break
			}
		}
	}

	if statusCode >= 500 {
		if stackTraceFrame.MatchString(body) || (strings.Contains(body, "stack") && strings.Contains(body, "at ")) {
			issues = append(issues, Issue{Kind: "stack_trace_leak", Detail: "stack trace fingerprint found"})
		}
		if infraErrorNames.MatchString(body) {
			issues = append(issues, Issue{Kind: "infra_error_leak", Detail: infraErrorNames.FindString(body)})
		}
	}

	return issues
}

func lowerKeys(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[strings.ToLower(k)] = v
	}
	return out
}
