package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sqlmesa/sqlmesa/internal/agent"
	"github.com/sqlmesa/sqlmesa/internal/config"
	"github.com/sqlmesa/sqlmesa/internal/dbconn"
)

type connectionRequest struct {
	SessionID        string        `json:"session_id"`
	Question         string        `json:"question"`
	ConnectionParams dbconn.Params `json:"connection_params"`
}

type connectionResponse struct {
	Message    string         `json:"message"`
	SessionID  string         `json:"session_id"`
	Dialect    string         `json:"dialect"`
	StatusCode int            `json:"status_code"`
	Answer     string         `json:"answer,omitempty"`
	Data       any            `json:"data,omitempty"`
	ChartData  map[string]any `json:"chart_data,omitempty"`
}

func handleConnection(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var request connectionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid connection request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.ConnectionParams.DBType) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "DB_TYPE_REQUIRED", "connection_params.db_type is required", false, nil)
		return
	}

	sessionID := strings.TrimSpace(request.SessionID)
	if sessionID == "" {
		sessionID = deps.newSessionID()
	} else if _, live := deps.Registry.Get(sessionID); live {
		writeError(r.Context(), w, http.StatusBadRequest, "SESSION_EXISTS", fmt.Sprintf("session %q is already connected", sessionID), false, nil)
		return
	}

	sess, err := deps.Connector.Connect(r.Context(), sessionID, request.ConnectionParams)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "CONNECTION_FAILED", err.Error(), false, nil)
		return
	}
	deps.Registry.Store(sess, cfg.Session.TTL)

	response := connectionResponse{
		Message:    fmt.Sprintf("Successfully connected with %s database %s", request.ConnectionParams.DBType, request.ConnectionParams.Database),
		SessionID:  sessionID,
		Dialect:    sess.Dialect,
		StatusCode: http.StatusOK,
	}

	// A question in the connection request is answered in the same call.
	if strings.TrimSpace(request.Question) != "" {
		state := deps.Runner.Run(r.Context(), sess, request.Question)
		if state.Phase != agent.PhaseAnswered {
			writeError(r.Context(), w, http.StatusInternalServerError, "QUERY_FAILED", state.Err, false, map[string]any{"session_id": sessionID})
			return
		}
		response.Answer = state.FinalAnswer
		response.ChartData = state.ChartData
		if state.Execution != nil {
			response.Data = state.Execution.Result
		}
	}

	writeJSON(w, http.StatusOK, response)
}

type disconnectRequest struct {
	SessionID string `json:"session_id"`
}

func handleDisconnect(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var request disconnectRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid disconnect request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SessionID) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SESSION_ID_REQUIRED", "session_id is required", false, nil)
		return
	}

	if !deps.Registry.Remove(request.SessionID) {
		writeError(r.Context(), w, http.StatusBadRequest, "SESSION_NOT_FOUND", fmt.Sprintf("no live session %q", request.SessionID), false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     fmt.Sprintf("Disconnected session %s", request.SessionID),
		"session_id":  request.SessionID,
		"status_code": http.StatusOK,
	})
}

func (d Dependencies) newSessionID() string {
	if d.NewSessionID != nil {
		return d.NewSessionID()
	}
	return uuid.NewString()
}
