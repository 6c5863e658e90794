package amqp

import (
	"encoding/json"
	"time"
)

// RunCompletedMessage announces a finished analysis run. It carries only
// identifiers and headline numbers; the export worker fetches the full
// run from the database.
type RunCompletedMessage struct {
	RunID        int64     `json:"run_id"`
	ReportID     string    `json:"report_id"`
	AnomalyCount int       `json:"anomaly_count"`
	TotalCents   int64     `json:"total_cents"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewRunCompletedMessage(runID int64, reportID string, anomalyCount int, totalCents int64) *RunCompletedMessage {
	return &RunCompletedMessage{
		RunID:        runID,
		ReportID:     reportID,
		AnomalyCount: anomalyCount,
		TotalCents:   totalCents,
		Timestamp:    time.Now(),
	}
}

func (m *RunCompletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RunCompletedMessageFromJSON(data []byte) (*RunCompletedMessage, error) {
	var msg RunCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
