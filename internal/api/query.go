package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sqlmesa/sqlmesa/internal/agent"
)

type queryRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

type queryResponse struct {
	Message    string         `json:"message"`
	SessionID  string         `json:"session_id"`
	Answer     string         `json:"answer"`
	Data       any            `json:"data,omitempty"`
	ChartData  map[string]any `json:"chart_data,omitempty"`
	SQL        string         `json:"sql,omitempty"`
	StatusCode int            `json:"status_code"`
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var request queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SessionID) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SESSION_ID_REQUIRED", "session_id is required", false, nil)
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	sess, ok := deps.Registry.Get(request.SessionID)
	if !ok {
		writeError(r.Context(), w, http.StatusBadRequest, "SESSION_NOT_FOUND", fmt.Sprintf("no live session %q, connect first", request.SessionID), false, nil)
		return
	}

	state := deps.Runner.Run(r.Context(), sess, request.Question)
	if state.Phase != agent.PhaseAnswered {
		writeError(r.Context(), w, http.StatusInternalServerError, "QUERY_FAILED", state.Err, false, map[string]any{
			"session_id":  request.SessionID,
			"retry_count": state.RetryCount,
		})
		return
	}

	response := queryResponse{
		Message:    "Executed Successfully!",
		SessionID:  request.SessionID,
		Answer:     state.FinalAnswer,
		ChartData:  state.ChartData,
		StatusCode: http.StatusOK,
	}
	if state.Generated != nil {
		response.SQL = state.Generated.SQL
	}
	if state.Execution != nil {
		response.Data = state.Execution.Result
	}
	writeJSON(w, http.StatusOK, response)
}
