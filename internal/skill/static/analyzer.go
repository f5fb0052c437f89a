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

package static

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

var dangerousRequireModules = map[string]bool{
	"child_process": true, "node:child_process": true,
	"cluster": true, "node:cluster": true,
	"dgram": true, "node:dgram": true,
	"dns": true, "node:dns": true,
	"net": true, "node:net": true,
	"tls": true, "node:tls": true,
}

var filesystemModules = map[string]bool{
	"fs": true, "node:fs": true,
	"fs/promises": true, "node:fs/promises": true,
}

var sandboxEscapeProperties = map[string]bool{
	"constructor": true, "__proto__": true, "prototype": true,
}

var hexLiteral = regexp.MustCompile(`^[0-9a-fA-F]{30,}$`)
var base64Literal = regexp.MustCompile(`^[A-Za-z0-9+/]{50,}={0,2}$`)
var unicodeEscapeCount = regexp.MustCompile(`\\u[0-9a-fA-F]{4}`)

// Analyze parses code as an ES module and walks its AST for the fixed
// vulnerability table. A parse failure is reported as a single info-level
// parse_error and never escalates the overall severity.
func Analyze(code string) Result {
	program, err := parser.ParseFile(nil, "skill.js", code, 0)
	if err != nil {
		return Result{
			Severity: SeverityInfo,
			Vulnerabilities: []Vulnerability{{
				Type:        VulnParseError,
				Severity:    SeverityInfo,
				Description: "Parse error - code may be obfuscated",
			}},
			Patterns: []string{"Parse error - code may be obfuscated"},
		}
	}

	var vulns []Vulnerability
	report := func(v Vulnerability) { vulns = append(vulns, v) }

	inspect(program, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.CallExpression:
			inspectCall(node, report)
		case *ast.NewExpression:
			inspectNew(node, report)
		case *ast.DotExpression:
			inspectDotExpression(node, report)
		case *ast.WithStatement:
			report(Vulnerability{Type: VulnSandboxEscape, Severity: SeverityCritical, Description: "with statement used"})
		case *ast.StringLiteral:
			inspectStringLiteral(string(node.Value), report)
		default:
			// Goja's dynamic-import and ES-module-import node types vary
			// across versions; matched by type name rather than field
			// layout to stay correct across them.
			typeName := fmt.Sprintf("%T", node)
			switch {
			case strings.Contains(typeName, "ImportCall"), strings.Contains(typeName, "ImportExpression"):
				report(Vulnerability{Type: VulnDynamicImport, Severity: SeverityCritical, Description: "dynamic import(...)"})
			case strings.Contains(typeName, "ImportDeclaration"):
				if mod, ok := firstStringLiteral(n); ok {
					inspectModuleReference(mod, report)
				}
			}
		}
		return true
	})

	patterns := make([]string, 0, len(vulns))
	for _, v := range vulns {
		patterns = append(patterns, v.Description)
	}

	return Result{Severity: maxSeverity(vulns), Vulnerabilities: vulns, Patterns: patterns}
}

func inspectCall(node *ast.CallExpression, report func(Vulnerability)) {
	name, ok := calleeName(node.Callee)
	if !ok {
		return
	}

	switch name {
	case "eval":
		report(Vulnerability{Type: VulnDangerousFunction, Severity: SeverityCritical, Description: "call to eval"})
	case "Function", "setTimeout", "setInterval":
		report(Vulnerability{Type: VulnDangerousFunction, Severity: SeverityHigh, Description: "call to " + name})
	case "require":
		if mod, ok := stringArg(node.ArgumentList, 0); ok {
			inspectModuleReference(mod, report)
		}
	case "fetch":
		if url, ok := stringArg(node.ArgumentList, 0); ok {
			report(Vulnerability{Type: VulnNetworkRequest, Severity: SeverityMedium, Description: "fetch call to " + url})
		} else {
			report(Vulnerability{Type: VulnNetworkRequest, Severity: SeverityHigh, Description: "fetch call with non-literal URL"})
		}
	}
}

func inspectNew(node *ast.NewExpression, report func(Vulnerability)) {
	name, ok := calleeName(node.Callee)
	if !ok {
		return
	}
	switch name {
	case "Function":
		report(Vulnerability{Type: VulnDangerousFunction, Severity: SeverityCritical, Description: "new Function(...)"})
	case "Proxy", "Reflect":
		report(Vulnerability{Type: VulnSandboxEscape, Severity: SeverityCritical, Description: "new " + name + "(...)"})
	}
}

func inspectDotExpression(node *ast.DotExpression, report func(Vulnerability)) {
	property := string(node.Identifier.Name)
	leftName, _ := calleeName(node.Left)

	switch {
	case leftName == "Proxy" || leftName == "Reflect":
		report(Vulnerability{Type: VulnSandboxEscape, Severity: SeverityCritical, Description: leftName + "." + property})
	case leftName == "arguments" && property == "callee":
		report(Vulnerability{Type: VulnSandboxEscape, Severity: SeverityCritical, Description: "arguments.callee"})
	case leftName == "process" && property == "env":
		report(Vulnerability{Type: VulnEnvAccess, Severity: SeverityHigh, Description: "process.env"})
	case sandboxEscapeProperties[property]:
		report(Vulnerability{Type: VulnSandboxEscape, Severity: SeverityCritical, Description: "member access ." + property})
	}
}

func inspectModuleReference(mod string, report func(Vulnerability)) {
	if dangerousRequireModules[mod] {
		report(Vulnerability{Type: VulnDangerousModule, Severity: SeverityCritical, Description: "require of dangerous module " + mod})
		return
	}
	if filesystemModules[mod] {
		report(Vulnerability{Type: VulnFilesystemAccess, Severity: SeverityHigh, Description: "require of filesystem module " + mod})
	}
}

func inspectStringLiteral(value string, report func(Vulnerability)) {
	switch {
	case len(value) >= 30 && hexLiteral.MatchString(value):
		report(Vulnerability{Type: VulnObfuscation, Severity: SeverityMedium, Description: "hex-shaped literal"})
	case len(value) >= 50 && base64Literal.MatchString(value):
		report(Vulnerability{Type: VulnObfuscation, Severity: SeverityMedium, Description: "base64-shaped literal"})
	case len(unicodeEscapeCount.FindAllString(value, -1)) >= 5:
		report(Vulnerability{Type: VulnObfuscation, Severity: SeverityMedium, Description: "excessive unicode escapes"})
	}
}

// calleeName resolves a simple identifier ("eval") or a dotted member
// chain ("Proxy", "process" for process.env, etc.) back to its leftmost or
// sole name, which is all the fixed vulnerability table needs.
func calleeName(expr ast.Expression) (string, bool) {
	switch e := expr.(type) {
	case *ast.Identifier:
		return string(e.Name), true
	case *ast.DotExpression:
		return calleeName(e.Left)
	}
	return "", false
}

func stringArg(args []ast.Expression, idx int) (string, bool) {
	if idx >= len(args) {
		return "", false
	}
	lit, ok := args[idx].(*ast.StringLiteral)
	if !ok {
		return "", false
	}
	return string(lit.Value), true
}

// firstStringLiteral returns the first string literal found anywhere
// beneath n, used to recover an import source module name without
// depending on the exact field layout of the import declaration node.
func firstStringLiteral(n ast.Node) (string, bool) {
	var found string
	var ok bool
	inspect(n, func(child ast.Node) bool {
		if ok {
			return false
		}
		if lit, isLit := child.(*ast.StringLiteral); isLit {
			found, ok = string(lit.Value), true
			return false
		}
		return true
	})
	return found, ok
}
