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

// Package static implements the Static Code Analyzer: an AST-driven scan
// for dangerous calls, imports, sandbox-escape vectors, and obfuscated
// literals.
package static

// Severity orders low < medium < high < critical < info is handled
// separately, since parse_error (info) never escalates the overall result.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// rank orders severities for the "maximum wins" aggregation rule, with
// info ranked below everything including low.
var rank = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// VulnType names a triggered detection rule.
type VulnType string

const (
	VulnDangerousFunction VulnType = "dangerous_function"
	VulnDangerousModule   VulnType = "dangerous_module"
	VulnFilesystemAccess  VulnType = "filesystem_access"
	VulnNetworkRequest    VulnType = "network_request"
	VulnSandboxEscape     VulnType = "sandbox_escape"
	VulnDynamicImport     VulnType = "dynamic_import"
	VulnEnvAccess         VulnType = "env_access"
	VulnObfuscation       VulnType = "obfuscation"
	VulnParseError        VulnType = "parse_error"
)

// Vulnerability is one reported finding, with its source location when
// available.
type Vulnerability struct {
	Type        VulnType
	Severity    Severity
	Description string
	Line        int
	Column      int
}

// Result is the static analyzer's output.
type Result struct {
	Severity        Severity
	Vulnerabilities []Vulnerability
	Patterns        []string
}

// maxSeverity returns the highest-ranked severity among vulns, or
// SeverityInfo if vulns is empty.
func maxSeverity(vulns []Vulnerability) Severity {
	max := SeverityInfo
	for _, v := range vulns {
		if rank[v.Severity] > rank[max] {
			max = v.Severity
		}
	}
	return max
}
