package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"txnstats/internal/analytics"
)

// ReportRequestMessage asks a worker to build a report. An empty Client
// means the worker's configured default client.
type ReportRequestMessage struct {
	ID        string    `json:"id"`
	Client    string    `json:"client,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReportMessage carries a finished report back to whoever asked for it.
type ReportMessage struct {
	ID        string           `json:"id"`
	RequestID string           `json:"request_id"`
	Source    string           `json:"source"`
	Report    analytics.Report `json:"report"`
	Timestamp time.Time        `json:"timestamp"`
}

func NewReportRequestMessage(client string) *ReportRequestMessage {
	return &ReportRequestMessage{
		ID:        uuid.NewString(),
		Client:    client,
		Timestamp: time.Now().UTC(),
	}
}

func NewReportMessage(requestID, source string, report analytics.Report) *ReportMessage {
	return &ReportMessage{
		ID:        uuid.NewString(),
		RequestID: requestID,
		Source:    source,
		Report:    report,
		Timestamp: time.Now().UTC(),
	}
}

func (m *ReportRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func (m *ReportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReportRequestMessageFromJSON decodes a request and requires a valid UUID id.
func ReportRequestMessageFromJSON(data []byte) (*ReportRequestMessage, error) {
	var msg ReportRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errors.New("report request without id")
	}
	if _, err := uuid.Parse(msg.ID); err != nil {
		return nil, err
	}
	return &msg, nil
}

func ReportMessageFromJSON(data []byte) (*ReportMessage, error) {
	var msg ReportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
