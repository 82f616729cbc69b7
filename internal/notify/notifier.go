// Package notify delivers critical lab result alerts to the ordering doctor's
// channel. The lab interpreter decides when to notify; this package only
// carries the event.
package notify

import (
	"context"
	"time"

	"diabetes-clinic-server/internal/logger"
)

// CriticalResultEvent is published once per critical result when the lab
// notifies the doctor.
type CriticalResultEvent struct {
	ResultID       string            `json:"resultId"`
	OrderID        string            `json:"orderId"`
	PatientID      string            `json:"patientId"`
	TestType       string            `json:"testType"`
	Interpretation string            `json:"interpretation"`
	Results        map[string]string `json:"results"`
	NotifiedBy     string            `json:"notifiedBy"`
	NotifiedAt     time.Time         `json:"notifiedAt"`
}

// Notifier delivers critical result events.
type Notifier interface {
	NotifyCriticalResult(ctx context.Context, event CriticalResultEvent) error
	Close() error
}

// LogNotifier writes events to the service log. Used when no broker is configured.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a notifier backed by log.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// NotifyCriticalResult logs the event at warn level so it stands out.
func (n *LogNotifier) NotifyCriticalResult(_ context.Context, event CriticalResultEvent) error {
	n.log.WithComponent("notify").WithFields(map[string]interface{}{
		"result_id":      event.ResultID,
		"patient_id":     event.PatientID,
		"test_type":      event.TestType,
		"interpretation": event.Interpretation,
		"notified_by":    event.NotifiedBy,
	}).Warn("Critical lab result: doctor notified")
	return nil
}

// Close is a no-op.
func (n *LogNotifier) Close() error {
	return nil
}
