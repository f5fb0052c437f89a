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

// Package logging provides structured JSON-line logging shared across the
// gateway's components.
package logging

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// Level is the severity of a log entry.
type Level string

const (
	Debug Level = "DEBUG"
	Info  Level = "INFO"
	Warn  Level = "WARN"
	Error Level = "ERROR"
)

// Logger writes structured entries tagged with a component name and the
// instance identifiers of the process emitting them.
type Logger struct {
	Component  string
	InstanceID string
	Container  string
}

// entry is the on-the-wire JSON shape of a single log line.
type entry struct {
	Timestamp string                 `json:"timestamp"`
	Level     Level                  `json:"level"`
	Component string                 `json:"component"`
	Instance  string                 `json:"instance_id"`
	Container string                 `json:"container"`
	AgentID   string                 `json:"agent_id,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// New returns a Logger tagged with component, reading deployment identity
// from INSTANCE_ID and the process hostname.
func New(component string) *Logger {
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}
	container, err := os.Hostname()
	if err != nil {
		container = "unknown"
	}
	return &Logger{Component: component, InstanceID: instanceID, Container: container}
}

// Log emits a structured entry at the given level.
func (l *Logger) Log(level Level, agentID, requestID, message string, fields map[string]interface{}) {
	e := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Component: l.Component,
		Instance:  l.InstanceID,
		Container: l.Container,
		AgentID:   agentID,
		RequestID: requestID,
		Message:   message,
		Fields:    fields,
	}
	b, err := json.Marshal(e)
	if err != nil {
		log.Printf("ERROR: failed to marshal log entry: %v", err)
		return
	}
	log.Println(string(b))
}

func (l *Logger) Info(agentID, requestID, message string, fields map[string]interface{}) {
	l.Log(Info, agentID, requestID, message, fields)
}

func (l *Logger) Warn(agentID, requestID, message string, fields map[string]interface{}) {
	l.Log(Warn, agentID, requestID, message, fields)
}

func (l *Logger) Error(agentID, requestID, message string, fields map[string]interface{}) {
	l.Log(Error, agentID, requestID, message, fields)
}

func (l *Logger) Debug(agentID, requestID, message string, fields map[string]interface{}) {
	l.Log(Debug, agentID, requestID, message, fields)
}

// ErrorWithErr logs an error entry, attaching err.Error() under "error" when
// err is non-nil.
func (l *Logger) ErrorWithErr(agentID, requestID, message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(agentID, requestID, message, fields)
}
