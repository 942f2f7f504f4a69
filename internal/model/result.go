package model

import "fmt"

// FeedbackKey is the response-map key for the cross-question feedback text.
// It is distinct from the numbered slot keys.
const FeedbackKey = "feedback"

// EvaluationResult is the per-report aggregate persisted to the result
// index. Responses holds one entry per populated slot key (nil until that
// slot was scored) plus the feedback entry.
type EvaluationResult struct {
	ReportID          string             `json:"rptc_id"`
	RegistrantID      string             `json:"rgtr_id"`
	StudentID         string             `json:"stdnt_id"`
	Responses         map[string]*string `json:"response"`
	TotalInputTokens  int                `json:"total_input_tokens"`
	TotalOutputTokens int                `json:"total_output_tokens"`
	TotalTokens       int                `json:"total_tokens"`
	TotalCostKRW      float64            `json:"total_cost_krw"`
	TotalTimeSeconds  float64            `json:"total_time_seconds"`
	CreatedAt         string             `json:"created_at"`
	ModifiedAt        string             `json:"mdfcn_dt"`
}

// ErrorArtifact records one failed evaluation attempt for one report.
// Every attempt is a new document; artifacts are never overwritten.
type ErrorArtifact struct {
	ReportID  string `json:"rptc_id"`
	Error     string `json:"error"`
	CreatedAt string `json:"created_dt"`
}

// DocID keys the artifact by report id plus attempt timestamp.
func (a ErrorArtifact) DocID() string {
	return a.ReportID + a.CreatedAt
}

// LeaseDocument is the election artifact a process inserts to claim
// candidacy for leadership. Created once at startup, never updated.
type LeaseDocument struct {
	Host      string `json:"host"`
	PID       int    `json:"pid"`
	CreatedAt int64  `json:"created_at"`
}

// DocID is the host-pid pair, unique per process.
func (d LeaseDocument) DocID() string {
	return fmt.Sprintf("%s-%d", d.Host, d.PID)
}
