// Package pipeline wires the question answering components together:
// connecting a session (database handle plus search index) and running
// one question through the orchestrator.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sqlmesa/sqlmesa/internal/agent"
	"github.com/sqlmesa/sqlmesa/internal/archive"
	"github.com/sqlmesa/sqlmesa/internal/config"
	"github.com/sqlmesa/sqlmesa/internal/dbconn"
	"github.com/sqlmesa/sqlmesa/internal/llm"
	"github.com/sqlmesa/sqlmesa/internal/schema"
	"github.com/sqlmesa/sqlmesa/internal/search"
	"github.com/sqlmesa/sqlmesa/internal/session"
	"github.com/sqlmesa/sqlmesa/internal/validate"
)

// AI is the language model surface the pipeline needs.
type AI interface {
	llm.Completer
	llm.Embedder
}

type Pipeline struct {
	ai       AI
	archiver *archive.Archiver
	cfg      config.PipelineConfig
	logger   *slog.Logger
}

func New(ai AI, archiver *archive.Archiver, cfg config.PipelineConfig, logger *slog.Logger) *Pipeline {
	return &Pipeline{ai: ai, archiver: archiver, cfg: cfg, logger: logger}
}

// Connect opens the database connection for a new session and builds
// its table search index. A failed index build degrades to the
// all-tables fallback instead of failing the connection.
func (p *Pipeline) Connect(ctx context.Context, id string, params dbconn.Params) (*session.Session, error) {
	handle, err := dbconn.Open(ctx, params, p.cfg.ConnectTimeout)
	if err != nil {
		return nil, err
	}

	index := search.NewEmbeddingSearch(p.ai)
	docs, err := schema.Documents(ctx, handle.DB, handle.Dialect)
	if err != nil {
		p.logger.Warn("building schema documents failed", slog.String("error", err.Error()))
	} else if err := index.Index(ctx, docs); err != nil {
		p.logger.Warn("indexing schema documents failed", slog.String("error", err.Error()))
	}

	return &session.Session{
		ID:        id,
		Dialect:   handle.Dialect,
		Handle:    handle,
		Search:    index,
		CreatedAt: time.Now(),
	}, nil
}

// Run answers one question on a live session and archives the completed
// run when an archiver is configured.
func (p *Pipeline) Run(ctx context.Context, sess *session.Session, question string) *agent.State {
	resolver := schema.NewResolver(sess.Handle.DB, sess.Dialect, sess.Search, p.cfg.TopK, p.cfg.SampleRows, p.logger)
	validator := validate.NewValidator(p.ai, p.logger)
	orchestrator := agent.NewOrchestrator(resolver, p.ai, validator, sess.Handle, agent.Options{
		MaxRetries:   p.cfg.MaxRetries,
		QueryTimeout: p.cfg.QueryTimeout,
	}, p.logger)

	state := orchestrator.Run(ctx, question)

	if state.Phase == agent.PhaseAnswered && p.archiver != nil {
		run := archive.Run{
			SessionID: sess.ID,
			RunID:     uuid.NewString(),
			Question:  question,
			SQL:       state.Generated.SQL,
			Dialect:   sess.Dialect,
		}
		if state.Execution != nil {
			run.Result = state.Execution.Result
		}
		p.archiver.Archive(ctx, run)
	}
	return state
}
