// Package agent sequences one question through schema resolution, query
// generation, validation, execution and answer synthesis, with a bounded
// retry loop on execution failure.
package agent

import (
	"github.com/sqlmesa/sqlmesa/internal/dbconn"
	"github.com/sqlmesa/sqlmesa/internal/schema"
	"github.com/sqlmesa/sqlmesa/internal/validate"
)

// Phase names the orchestration states. Error is terminal and reachable
// from every phase.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseSchemaResolved Phase = "schema_resolved"
	PhaseQueryGenerated Phase = "query_generated"
	PhaseQueryValidated Phase = "query_validated"
	PhaseExecuted       Phase = "executed"
	PhaseAnswered       Phase = "answered"
	PhaseError          Phase = "error"
)

// Message is one entry in the turn's event log.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GeneratedQuery holds the generation output. SQL may be overwritten by
// a corrected version during validation or retry.
type GeneratedQuery struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation,omitempty"`
	RawResponse string `json:"-"`
}

// Execution is the outcome of one execution attempt.
type Execution struct {
	Success      bool                    `json:"success"`
	Result       *dbconn.ExecutionResult `json:"result,omitempty"`
	ErrorMessage string                  `json:"error_message,omitempty"`
}

// State is the per-run aggregate. It is owned exclusively by one
// in-flight run and never shared across concurrent questions.
type State struct {
	Question    string            `json:"question"`
	Phase       Phase             `json:"phase"`
	Messages    []Message         `json:"messages"`
	Snapshot    *schema.Snapshot  `json:"schema,omitempty"`
	Generated   *GeneratedQuery   `json:"generated_query,omitempty"`
	Validation  *validate.Result  `json:"validation,omitempty"`
	Execution   *Execution        `json:"execution,omitempty"`
	FinalAnswer string            `json:"final_answer,omitempty"`
	ChartData   map[string]any    `json:"chart_data,omitempty"`
	Err         string            `json:"error,omitempty"`
	RetryCount  int               `json:"retry_count"`
}

func (s *State) addMessage(role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content})
}
