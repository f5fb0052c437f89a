package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBootstrap_BlankPathReturnsEmpty(t *testing.T) {
	b, err := LoadBootstrap("")
	require.NoError(t, err)
	assert.Empty(t, b.Rules)
	assert.Empty(t, b.Signatures)
}

func TestLoadBootstrap_MissingFileErrors(t *testing.T) {
	_, err := LoadBootstrap(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoadBootstrap_ParsesRulesAndSignatures(t *testing.T) {
	yamlDoc := `
rules:
  - id: deny-admin
    name: deny admin path
    kind: deny
    priority: 1
    enabled: true
    conditions:
      - field: path
        operator: eq
        value: /admin
    action:
      kind: deny
      message: admin path blocked
signatures:
  - name: known-bad-script
    sha256: ""
    pattern: "(?i)rm -rf /"
`
	path := filepath.Join(t.TempDir(), "bootstrap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	b, err := LoadBootstrap(path)
	require.NoError(t, err)
	require.Len(t, b.Rules, 1)
	assert.Equal(t, "deny-admin", b.Rules[0].ID)
	assert.Equal(t, "/admin", b.Rules[0].Conditions[0].Value)

	require.Len(t, b.Signatures, 1)
	assert.Equal(t, "known-bad-script", b.Signatures[0].Name)
	require.NotNil(t, b.Signatures[0].Pattern)
	assert.True(t, b.Signatures[0].Pattern.MatchString("rm -rf /"))
}

func TestLoadBootstrap_InvalidSignaturePatternErrors(t *testing.T) {
	yamlDoc := `
signatures:
  - name: broken
    pattern: "(unterminated"
`
	path := filepath.Join(t.TempDir(), "bootstrap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	_, err := LoadBootstrap(path)
	assert.Error(t, err)
}

func TestLoadBootstrap_MalformedYAMLErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bootstrap.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: valid: yaml: [: broken"), 0o644))

	_, err := LoadBootstrap(path)
	assert.Error(t, err)
}
