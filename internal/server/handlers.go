package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/scienceon/tutor-batch/internal/model"
	"github.com/scienceon/tutor-batch/internal/store"
)

// Status codes shared with the collaborating service. The set is closed:
// handlers never leak raw errors past it.
const (
	codeOK         = "001"
	codeNotFound   = "002"
	codeUnexpected = "999"
)

var statusMessages = map[string]string{
	codeOK:         "정상 처리되었습니다.",
	codeNotFound:   "보고서 평가 데이터가 존재하지 않습니다.",
	codeUnexpected: "시스템에서 처리 중 알 수 없는 오류가 발생했습니다. 잠시 후 다시 시도해주시고, 문제가 지속되면 관리자에게 문의 바랍니다.",
}

type resultStatus struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// reportBody is the wrapped payload of the report query endpoint.
type reportBody struct {
	Result    resultStatus      `json:"result"`
	ReportID  string            `json:"rptc_id,omitempty"`
	Responses map[string]string `json:"rptc_result,omitempty"`
	CreatedAt string            `json:"created_at,omitempty"`
}

type reportEnvelope struct {
	Response reportBody `json:"response"`
}

func statusEnvelope(code string) reportEnvelope {
	return reportEnvelope{Response: reportBody{
		Result: resultStatus{Code: code, Message: statusMessages[code]},
	}}
}

type reportRequest struct {
	UserID   string `json:"user_id"`
	ReportID string `json:"rptc_id"`
}

type manualBatchRequest struct {
	ReportIDs []string `json:"rptc_list"`
}

// manualBatchResponse is flat, unlike the report envelope; the trigger
// caller is an internal tool, not the collaborating service.
type manualBatchResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	JobID        string `json:"job_id,omitempty"`
	ScheduledFor string `json:"scheduled_for,omitempty"`
	Count        int    `json:"count,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("server: writing response failed", zap.Error(err))
	}
}

func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "AI Tutor Home"})
}

// handleReport looks up the persisted evaluation for one report and
// returns its non-empty answers.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		zap.L().Warn("server: bad report request", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, statusEnvelope(codeUnexpected))
		return
	}
	zap.L().Info("server: report lookup",
		zap.String("user_id", req.UserID), zap.String("rptc_id", req.ReportID))

	q := store.NewQuery().MatchPhrase(store.Must, "rptc_id", req.ReportID)
	hits, err := s.store.Search(r.Context(), s.cfg.ResultIndex, q)
	if err != nil {
		zap.L().Error("server: report lookup failed",
			zap.String("rptc_id", req.ReportID), zap.Error(err))
		writeJSON(w, http.StatusBadRequest, statusEnvelope(codeUnexpected))
		return
	}
	if len(hits) == 0 {
		writeJSON(w, http.StatusOK, statusEnvelope(codeNotFound))
		return
	}

	var result model.EvaluationResult
	if err := json.Unmarshal(hits[0].Source, &result); err != nil {
		zap.L().Error("server: corrupt evaluation document",
			zap.String("rptc_id", req.ReportID), zap.Error(err))
		writeJSON(w, http.StatusBadRequest, statusEnvelope(codeUnexpected))
		return
	}

	answered := make(map[string]string, len(result.Responses))
	for key, value := range result.Responses {
		if value != nil {
			answered[key] = *value
		}
	}

	env := statusEnvelope(codeOK)
	env.Response.ReportID = result.ReportID
	env.Response.Responses = answered
	env.Response.CreatedAt = result.CreatedAt
	writeJSON(w, http.StatusOK, env)
}

// handleManualBatch queues an on-demand cycle for the listed reports.
func (s *Server) handleManualBatch(w http.ResponseWriter, r *http.Request) {
	var req manualBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		zap.L().Warn("server: bad manual batch request", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, manualBatchResponse{
			Status:  codeUnexpected,
			Message: statusMessages[codeUnexpected],
		})
		return
	}

	if len(req.ReportIDs) == 0 {
		writeJSON(w, http.StatusOK, manualBatchResponse{
			Status:  codeNotFound,
			Message: "보고서 데이터를 입력해주세요.",
		})
		return
	}

	jobID, scheduledFor := s.trigger.Trigger(req.ReportIDs)
	zap.L().Info("server: manual batch queued",
		zap.String("job_id", jobID), zap.Int("count", len(req.ReportIDs)))
	writeJSON(w, http.StatusOK, manualBatchResponse{
		Status:       codeOK,
		Message:      "수동 전처리 작업이 스케줄러에 등록되었습니다.",
		JobID:        jobID,
		ScheduledFor: scheduledFor.Format("2006-01-02T15:04:05"),
		Count:        len(req.ReportIDs),
	})
}
