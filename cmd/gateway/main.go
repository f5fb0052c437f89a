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

// Package main is the entry point for the Clawshield gateway.
//
// The gateway is the inline security layer multi-agent platforms sit
// behind: it inspects every outbound HTTP request and inbound WebSocket
// message against a rule engine, a heuristic threat scorer, and a set of
// behavioral detectors, and it analyzes candidate skill code through a
// static/dynamic/signature pipeline before it is ever installed.
//
// Usage:
//
//	./gateway
//
// Environment variables, all optional and documented in
// internal/config/config.go:
//
//	CLAWSHIELD_POSTGRES_DSN, CLAWSHIELD_REDIS_ADDR, CLAWSHIELD_LISTEN_ADDR,
//	CLAWSHIELD_DEFAULT_RATE_LIMIT, CLAWSHIELD_THREAT_SCORE_THRESHOLD,
//	CLAWSHIELD_RULE_CACHE_TTL_SECONDS, CLAWSHIELD_BLACKLIST_TTL_SECONDS,
//	CLAWSHIELD_DYNAMIC_TIMEOUT_MS, CLAWSHIELD_JWT_PUBLIC_KEY_PATH,
//	CLAWSHIELD_RULES_BOOTSTRAP_PATH
package main

import (
	"github.com/getclawshield/clawshield/internal/gateway"
)

func main() {
	gateway.Run()
}
