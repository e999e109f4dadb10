package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sqlmesa/sqlmesa/internal/dbconn"
	"github.com/sqlmesa/sqlmesa/internal/dialect"
	"github.com/sqlmesa/sqlmesa/internal/llm"
	"github.com/sqlmesa/sqlmesa/internal/observability"
	"github.com/sqlmesa/sqlmesa/internal/schema"
	"github.com/sqlmesa/sqlmesa/internal/validate"
)

// SchemaResolver narrows the database schema for a question.
type SchemaResolver interface {
	Resolve(ctx context.Context, question string) (*schema.Snapshot, error)
}

// QueryValidator reviews a generated query before execution.
type QueryValidator interface {
	Validate(ctx context.Context, query string, snapshot *schema.Snapshot) validate.Result
}

// Executor runs a statement on the session's connection.
type Executor interface {
	Execute(ctx context.Context, query string) (*dbconn.ExecutionResult, error)
}

// Orchestrator drives one question through the pipeline.
type Orchestrator struct {
	resolver     SchemaResolver
	completer    llm.Completer
	validator    QueryValidator
	executor     Executor
	maxRetries   int
	queryTimeout time.Duration
	logger       *slog.Logger
}

type Options struct {
	MaxRetries   int
	QueryTimeout time.Duration
}

func NewOrchestrator(resolver SchemaResolver, completer llm.Completer, validator QueryValidator, executor Executor, opts Options, logger *slog.Logger) *Orchestrator {
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	queryTimeout := opts.QueryTimeout
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &Orchestrator{
		resolver:     resolver,
		completer:    completer,
		validator:    validator,
		executor:     executor,
		maxRetries:   maxRetries,
		queryTimeout: queryTimeout,
		logger:       logger,
	}
}

// Run executes the full pipeline for one question. It always returns a
// terminal state: PhaseAnswered on success, PhaseError otherwise.
func (o *Orchestrator) Run(ctx context.Context, question string) *State {
	observability.IncrementRunStarted()

	state := &State{Question: question, Phase: PhaseIdle}
	state.addMessage("user", question)

	if !o.resolveSchema(ctx, state) {
		return state
	}

	// Execution failure feeds the error back into generation, bounded by
	// maxRetries. maxRetries retries means maxRetries+1 attempts total.
	var lastExecError string
	for {
		if !o.generateQuery(ctx, state, lastExecError) {
			return state
		}
		if !o.validateQuery(ctx, state) {
			return state
		}

		execErr := o.executeQuery(ctx, state)
		if execErr == "" {
			break
		}
		if state.RetryCount >= o.maxRetries {
			o.fail(state, "execute", fmt.Errorf("query failed after %d attempts: %s", state.RetryCount+1, execErr))
			return state
		}
		state.RetryCount++
		lastExecError = execErr
		observability.IncrementExecutionRetry()
		state.addMessage("assistant", "Let me try to fix the query and execute it again.")
	}

	if !o.generateAnswer(ctx, state) {
		return state
	}

	state.Phase = PhaseAnswered
	observability.IncrementRunCompleted()
	return state
}

func (o *Orchestrator) resolveSchema(ctx context.Context, state *State) bool {
	started := time.Now()
	snapshot, err := o.resolver.Resolve(ctx, state.Question)
	observability.ObserveStageDuration("resolve_schema", time.Since(started))
	if err != nil {
		// Not self-correctable by regeneration, so no retry.
		o.fail(state, "resolve_schema", fmt.Errorf("resolve schema: %w", err))
		return false
	}
	state.Snapshot = snapshot
	state.Phase = PhaseSchemaResolved
	state.addMessage("assistant", fmt.Sprintf("I've analyzed the database schema. Found %d relevant tables: %s",
		len(snapshot.RelevantTables), strings.Join(snapshot.RelevantTables, ", ")))
	return true
}

func (o *Orchestrator) generateQuery(ctx context.Context, state *State, lastExecError string) bool {
	started := time.Now()
	response, err := o.completer.Complete(ctx, generationSystemPrompt, o.generationPrompt(state, lastExecError))
	observability.ObserveStageDuration("generate_query", time.Since(started))
	if err != nil {
		o.fail(state, "generate_query", fmt.Errorf("generate query: %w", err))
		return false
	}

	sql := llm.ExtractSQL(response)
	if strings.TrimSpace(sql) == "" {
		o.fail(state, "generate_query", fmt.Errorf("generation produced no SQL"))
		return false
	}
	sql = dialect.Adapt(sql, state.Snapshot.Dialect)

	state.Generated = &GeneratedQuery{
		SQL:         sql,
		Explanation: explanationOf(response),
		RawResponse: response,
	}
	state.Validation = nil
	state.Execution = nil
	state.Phase = PhaseQueryGenerated
	state.addMessage("assistant", fmt.Sprintf("I've generated a SQL query to answer your question:\n\n```sql\n%s\n```", sql))
	return true
}

func (o *Orchestrator) validateQuery(ctx context.Context, state *State) bool {
	started := time.Now()
	result := o.validator.Validate(ctx, state.Generated.SQL, state.Snapshot)
	observability.ObserveStageDuration("validate_query", time.Since(started))

	state.Validation = &result
	state.Phase = PhaseQueryValidated

	if result.IsValid {
		state.addMessage("assistant", "The SQL query looks valid. Now I'll execute it to get the results.")
		return true
	}

	// Substitute a corrected query at most once per generation; with no
	// extractable correction the original runs and execution failure
	// drives the bounded retry.
	if result.CorrectedSQL != "" {
		corrected := dialect.Adapt(result.CorrectedSQL, state.Snapshot.Dialect)
		state.Generated.SQL = corrected
		state.addMessage("assistant", fmt.Sprintf("The query had issues, using the corrected version:\n\n```sql\n%s\n```", corrected))
	} else {
		state.addMessage("assistant", fmt.Sprintf("Validation raised %d issue(s) but produced no correction; executing the original query.", len(result.Issues)))
	}
	return true
}

// executeQuery returns an empty string on success, otherwise the error
// text handed back to generation as retry context.
func (o *Orchestrator) executeQuery(ctx context.Context, state *State) string {
	execCtx, cancel := context.WithTimeout(ctx, o.queryTimeout)
	defer cancel()

	started := time.Now()
	result, err := o.executor.Execute(execCtx, state.Generated.SQL)
	observability.ObserveStageDuration("execute_query", time.Since(started))

	if err != nil {
		state.Execution = &Execution{Success: false, ErrorMessage: err.Error()}
		state.Phase = PhaseExecuted
		state.addMessage("assistant", fmt.Sprintf("I encountered an error while executing the SQL query: %s", err.Error()))
		o.logger.Warn("query execution failed",
			slog.Int("attempt", state.RetryCount+1),
			slog.String("error", err.Error()))
		return err.Error()
	}

	state.Execution = &Execution{Success: true, Result: result}
	state.Phase = PhaseExecuted
	if result.IsSelect {
		state.addMessage("assistant", fmt.Sprintf("I executed the SQL query and got %d results.", len(result.Rows)))
	} else {
		state.addMessage("assistant", fmt.Sprintf("I executed the SQL query successfully, %d rows affected.", result.RowsAffected))
	}
	return ""
}

func (o *Orchestrator) generateAnswer(ctx context.Context, state *State) bool {
	started := time.Now()
	answer, err := o.completer.Complete(ctx, answerSystemPrompt, answerPrompt(state))
	observability.ObserveStageDuration("generate_answer", time.Since(started))
	if err != nil {
		o.fail(state, "generate_answer", fmt.Errorf("generate final answer: %w", err))
		return false
	}

	state.FinalAnswer = strings.TrimSpace(answer)
	state.ChartData = chartData(state.Execution.Result)
	state.addMessage("assistant", state.FinalAnswer)
	return true
}

func (o *Orchestrator) fail(state *State, stage string, err error) {
	state.Err = err.Error()
	state.Phase = PhaseError
	state.addMessage("assistant", fmt.Sprintf("I encountered an error: %s", err.Error()))
	observability.IncrementRunFailed(stage)
	o.logger.Error("run failed",
		slog.String("stage", stage),
		slog.String("error", err.Error()))
}

// explanationOf keeps the prose that precedes the fenced query block.
func explanationOf(response string) string {
	if idx := strings.Index(response, "```"); idx > 0 {
		return strings.TrimSpace(response[:idx])
	}
	return ""
}
