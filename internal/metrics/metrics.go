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

// Package metrics defines the Prometheus instrumentation the gateway
// exposes at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InspectionsTotal counts every inspectRequest/inspectMessage call by
	// surface and outcome.
	InspectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clawshield_inspections_total",
		Help: "Total number of inspection pipeline runs.",
	}, []string{"surface", "allowed"})

	// DeniesByThreatType counts denies broken down by threat type.
	DeniesByThreatType = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clawshield_denies_total",
		Help: "Total number of denies broken down by threat type.",
	}, []string{"threat_type"})

	// InspectionDuration tracks per-surface inspection latency.
	InspectionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clawshield_inspection_duration_seconds",
		Help:    "Duration of a single inspection pipeline run.",
		Buckets: prometheus.DefBuckets,
	}, []string{"surface"})

	// SkillAnalysisDuration tracks skill-analysis latency by outcome stage.
	SkillAnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clawshield_skill_analysis_duration_seconds",
		Help:    "Duration of a skill analysis run.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	// ThreatScore tracks the distribution of computed composite threat
	// scores.
	ThreatScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clawshield_threat_score",
		Help:    "Distribution of computed composite threat scores.",
		Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	})

	// RuleCacheRefreshes counts rule-cache reload attempts.
	RuleCacheRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clawshield_rule_cache_refreshes_total",
		Help: "Total number of rule cache refresh attempts.",
	})
)
