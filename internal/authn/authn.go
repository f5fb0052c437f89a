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

// Package authn performs optional JWT bearer verification ahead of the
// firewall's own inspection pipeline. It never produces a Threat Event: a
// missing bearer token simply falls through to the existing no-agentId
// path. A present-but-invalid token, or a valid token whose subject differs
// from a non-empty agent identifier, is rejected outright.
package authn

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates bearer tokens against a fixed RSA/ECDSA public key and
// checks that the token's subject claim matches the agent identifier
// presented on the wire.
type Verifier struct {
	publicKey interface{}
}

// NewVerifier returns a Verifier that checks signatures against publicKey
// (an *rsa.PublicKey or *ecdsa.PublicKey, per golang-jwt/jwt/v5 conventions).
func NewVerifier(publicKey interface{}) *Verifier {
	return &Verifier{publicKey: publicKey}
}

// Verify parses and validates bearerToken (without the "Bearer " prefix)
// and returns an error if it is invalid or, when agentID is non-empty, if
// its "sub" claim differs from agentID. An empty or blank token succeeds,
// and so does a nil Verifier receiver (or one without a public key), which
// lets the gateway run with authentication disabled.
func (v *Verifier) Verify(bearerToken, agentID string) error {
	if v == nil || v.publicKey == nil {
		return nil
	}
	bearerToken = strings.TrimSpace(bearerToken)
	if bearerToken == "" {
		return nil
	}

	token, err := jwt.Parse(bearerToken, func(t *jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	}, jwt.WithValidMethods([]string{"RS256", "ES256"}))
	if err != nil {
		return fmt.Errorf("authn: token invalid: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return fmt.Errorf("authn: token invalid")
	}
	sub, _ := claims["sub"].(string)
	if agentID != "" && sub != agentID {
		return fmt.Errorf("authn: token subject %q does not match agent %q", sub, agentID)
	}
	return nil
}

// AgentID extracts the agent identifier from the first of x-agent-id or
// x-clawshield-agent-id that is present, per the wire convention.
func AgentID(headers map[string]string) string {
	for _, key := range []string{"x-agent-id", "x-clawshield-agent-id"} {
		if v, ok := lookupCaseInsensitive(headers, key); ok && v != "" {
			return v
		}
	}
	return ""
}

func lookupCaseInsensitive(headers map[string]string, key string) (string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}
