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

// Package exfil implements the Exfiltration Detector: classification of
// outbound api_call messages by destination trust and payload sensitivity.
package exfil

import (
	"net/url"
	"regexp"
	"strings"
)

const largeUploadThreshold = 100_000

var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)api[_-]?key[=:]`),
	regexp.MustCompile(`(?i)password[=:]`),
	regexp.MustCompile(`(?i)secret[=:]`),
	regexp.MustCompile(`(?i)token[=:]`),
	regexp.MustCompile(`(?i)private_key`),
}

// IsTrusted reports whether host matches one of trustedDomains exactly or
// as a parent suffix (case-insensitive).
func IsTrusted(host string, trustedDomains []string) bool {
	host = strings.ToLower(host)
	for _, d := range trustedDomains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Check evaluates an api_call message's rawURL and body against
// trustedDomains. A parse failure, or any rawURL that isn't api_call-shaped,
// is benign. Returns true only when the destination is untrusted and
// either the body is oversized or contains a sensitive-looking pattern.
func Check(rawURL, body string, trustedDomains []string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	if IsTrusted(u.Hostname(), trustedDomains) {
		return false
	}

	if len(body) > largeUploadThreshold {
		return true
	}
	for _, p := range sensitivePatterns {
		if p.MatchString(body) {
			return true
		}
	}
	return false
}
