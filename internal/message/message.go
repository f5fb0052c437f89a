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

// Package message defines the Agent Message wire format and its structural
// validation.
package message

import (
	"encoding/json"
	"fmt"
)

// Type discriminates the Agent Message tagged union.
type Type string

const (
	SessionsSend  Type = "sessions_send"
	SessionsSpawn Type = "sessions_spawn"
	SessionsReply Type = "sessions_reply"
	APICall       Type = "api_call"
	SkillExecute  Type = "skill_execute"
	Ping          Type = "ping"
)

const (
	maxContentLen = 100_000
	maxBodyLen    = 1_048_576
)

var validTypes = map[Type]bool{
	SessionsSend:  true,
	SessionsSpawn: true,
	SessionsReply: true,
	APICall:       true,
	SkillExecute:  true,
	Ping:          true,
}

// allowed top-level field names, used to reject unknown fields during
// structural validation.
var allowedFields = map[string]bool{
	"type":          true,
	"content":       true,
	"targetAgentId": true,
	"url":           true,
	"headers":       true,
	"body":          true,
	"metadata":      true,
}

// Message is the typed Agent Message.
type Message struct {
	Type          Type
	Content       *string
	TargetAgentID *string
	URL           *string
	Headers       map[string]string
	Body          *string
	Metadata      map[string]interface{}
}

// Parse validates raw JSON against the Agent Message schema and returns the
// typed value, or a structural error describing the first problem found.
func Parse(raw []byte) (*Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	for name := range fields {
		if !allowedFields[name] {
			return nil, fmt.Errorf("unknown field %q", name)
		}
	}

	typeRaw, ok := fields["type"]
	if !ok {
		return nil, fmt.Errorf("missing required field \"type\"")
	}
	var typeStr string
	if err := json.Unmarshal(typeRaw, &typeStr); err != nil {
		return nil, fmt.Errorf("\"type\" must be a string")
	}
	t := Type(typeStr)
	if !validTypes[t] {
		return nil, fmt.Errorf("unknown message type %q", typeStr)
	}

	m := &Message{Type: t}

	if raw, ok := fields["content"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("\"content\" must be a string")
		}
		if len(s) > maxContentLen {
			return nil, fmt.Errorf("\"content\" exceeds maximum length of %d", maxContentLen)
		}
		m.Content = &s
	}
	if raw, ok := fields["targetAgentId"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("\"targetAgentId\" must be a string")
		}
		m.TargetAgentID = &s
	}
	if raw, ok := fields["url"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("\"url\" must be a string")
		}
		m.URL = &s
	}
	if raw, ok := fields["headers"]; ok {
		var h map[string]string
		if err := json.Unmarshal(raw, &h); err != nil {
			return nil, fmt.Errorf("\"headers\" must be a string map")
		}
		m.Headers = h
	}
	if raw, ok := fields["body"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("\"body\" must be a string")
		}
		if len(s) > maxBodyLen {
			return nil, fmt.Errorf("\"body\" exceeds maximum length of %d", maxBodyLen)
		}
		m.Body = &s
	}
	if raw, ok := fields["metadata"]; ok {
		var md map[string]interface{}
		if err := json.Unmarshal(raw, &md); err != nil {
			return nil, fmt.Errorf("\"metadata\" must be an object")
		}
		m.Metadata = md
	}

	return m, nil
}
