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

// Package gateway wires the inspection core into a runnable HTTP/WebSocket
// binary: router, CORS, Prometheus exposition, and graceful startup.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/getclawshield/clawshield/internal/authn"
	"github.com/getclawshield/clawshield/internal/config"
	"github.com/getclawshield/clawshield/internal/firewall"
	"github.com/getclawshield/clawshield/internal/logging"
	"github.com/getclawshield/clawshield/internal/rules"
	"github.com/getclawshield/clawshield/internal/skill"
	"github.com/getclawshield/clawshield/internal/store"
)

var pkgLog = logging.New("gateway")

// Run initializes every dependency from cfg and blocks serving HTTP until
// the process is killed.
func Run() {
	cfg := config.ConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("gateway: invalid configuration: %v", err)
	}

	ctx := context.Background()

	rel, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("gateway: connecting to postgres: %v", err)
	}
	defer rel.Close()

	kv, err := store.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("gateway: connecting to redis: %v", err)
	}
	defer kv.Close()

	bootstrap, err := config.LoadBootstrap(cfg.RulesBootstrapPath)
	if err != nil {
		log.Fatalf("gateway: loading rules bootstrap: %v", err)
	}

	skillOpts := skill.DefaultOptions()
	skillOpts.DynamicTimeout = cfg.DynamicExecuteTimeout
	if len(bootstrap.Signatures) > 0 {
		skillOpts.Signatures = append(skillOpts.Signatures, bootstrap.Signatures...)
	}

	engine := rules.NewEngine(rel, cfg.RuleCacheTTL)

	encryptionKey, err := cfg.EncryptionKey()
	if err != nil {
		log.Fatalf("gateway: %v", err)
	}

	orch := firewall.New(firewall.Options{
		RelStore:             rel,
		KVStore:              kv,
		Rules:                engine,
		Alerts:               nil,
		DefaultRateLimit:     cfg.DefaultRateLimitPerMinute,
		ThreatScoreThreshold: cfg.ThreatScoreThreshold,
		RateLimitTTL:         60 * time.Second,
		BlacklistTTL:         cfg.BlacklistTTL,
		EncryptionKey:        encryptionKey,
	})

	var verifier *authn.Verifier
	if cfg.JWTPublicKeyPath != "" {
		key, err := loadJWTPublicKey(cfg.JWTPublicKeyPath)
		if err != nil {
			log.Fatalf("gateway: loading JWT public key: %v", err)
		}
		verifier = authn.NewVerifier(key)
	}

	h := &handlers{rel: rel, orch: orch, skillOpts: skillOpts, verifier: verifier, conns: newConnLimiter()}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.healthz).Methods("GET")
	r.Handle("/metrics", metricsHandler()).Methods("GET")
	r.HandleFunc("/v1/inspect/request", h.inspectRequest).Methods("POST")
	r.HandleFunc("/v1/inspect/ws", h.inspectWS)
	r.HandleFunc("/v1/skills/analyze", h.analyzeSkill).Methods("POST")

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	pkgLog.Info("", "", "clawshield gateway starting", map[string]interface{}{"addr": cfg.ListenAddr})
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      c.Handler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	log.Fatal(srv.ListenAndServe())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
