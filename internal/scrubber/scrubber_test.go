package scrubber

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func issueKinds(issues []Issue) []string {
	kinds := make([]string, 0, len(issues))
	for _, i := range issues {
		kinds = append(kinds, i.Kind)
	}
	return kinds
}

func TestScan_CleanResponse(t *testing.T) {
	headers := map[string]string{
		"X-Content-Type-Options":   "nosniff",
		"Content-Security-Policy": "default-src 'self'",
	}
	issues := Scan(headers, `{"status":"ok"}`, 200)
	assert.Empty(t, issues)
}

func TestScan_CredentialLeak(t *testing.T) {
	body := `{"api_key": "sk_live_abcdef1234567890"}`
	issues := Scan(nil, body, 200)
	assert.Contains(t, issueKinds(issues), "credential_leak")
}

func TestScan_StripeLiveKeyLeak(t *testing.T) {
	body := `payment token pk_live_51H8xyzABCDEFGHIJKLMN in request log`
	issues := Scan(nil, body, 200)
	assert.Contains(t, issueKinds(issues), "credential_leak")
}

func TestScan_StripeSecretKeyLeak(t *testing.T) {
	body := `stripe secret sk-51H8xyzABCDEFGHIJKLMN leaked in response`
	issues := Scan(nil, body, 200)
	assert.Contains(t, issueKinds(issues), "credential_leak")
}

func TestScan_InsecureCORS(t *testing.T) {
	headers := map[string]string{"Access-Control-Allow-Origin": "*"}
	issues := Scan(headers, "", 200)
	assert.Contains(t, issueKinds(issues), "insecure_cors")
}

func TestScan_MissingSecurityHeaders(t *testing.T) {
	issues := Scan(nil, "", 200)
	kinds := issueKinds(issues)
	assert.Contains(t, kinds, "missing_header")
}

func TestScan_ServerHeaderLeak(t *testing.T) {
	headers := map[string]string{"Server": "nginx/1.21.0"}
	issues := Scan(headers, "", 200)
	assert.Contains(t, issueKinds(issues), "server_header_leak")
}

func TestScan_StackTraceOnlyChecked5xx(t *testing.T) {
	body := "Error: boom\n    at handler (/app/index.js:42:17)"
	issuesOK := Scan(nil, body, 200)
	assert.NotContains(t, issueKinds(issuesOK), "stack_trace_leak")

	issuesError := Scan(nil, body, 500)
	assert.Contains(t, issueKinds(issuesError), "stack_trace_leak")
}

func TestScan_InfraErrorLeak(t *testing.T) {
	body := "upstream connect error: ECONNREFUSED"
	issues := Scan(nil, body, 502)
	assert.Contains(t, issueKinds(issues), "infra_error_leak")
}
