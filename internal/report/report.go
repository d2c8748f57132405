// Package report turns cycle outcomes into operator-visible lines, log
// records and sink deliveries, and keeps the most recent ones in memory.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"diagnosys-poller/internal/domain"
	"diagnosys-poller/internal/errors"
)

// Outcome classifies a finished cycle.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeDegraded Outcome = "degraded"
	OutcomeFailed   Outcome = "failed"
)

// Report describes one cycle.
type Report struct {
	CycleID   string                  `json:"cycle_id"`
	Asset     domain.AssetID          `json:"asset"`
	Outcome   Outcome                 `json:"outcome"`
	Stage     string                  `json:"stage,omitempty"` // stage that failed
	Result    *domain.DiagnosisResult `json:"result,omitempty"`
	Error     string                  `json:"error,omitempty"`
	ErrorKind errors.Kind             `json:"error_kind,omitempty"`
	Status    int                     `json:"status,omitempty"` // HTTP status of a RemoteError
	Readings  int                     `json:"readings"`
	StartedAt time.Time               `json:"started_at"`
	Duration  time.Duration           `json:"duration_ns"`
}

// Sink receives every report. Failures are logged by the Reporter and never
// fail the cycle.
type Sink interface {
	Name() string
	Publish(ctx context.Context, r Report) error
}

var anomalyWords = []string{"anomal", "fault"}

// Anomalous reports whether the diagnosis flagged the asset: the inference
// service's faulty code, or a description mentioning a fault or anomaly.
func (r Report) Anomalous() bool {
	if r.Result == nil {
		return false
	}
	if r.Result.StatusCode == domain.StatusFaulty {
		return true
	}
	desc := strings.ToLower(r.Result.StatusDescription)
	for _, w := range anomalyWords {
		if strings.Contains(desc, w) {
			return true
		}
	}
	return false
}

// Line renders the one-line form shown to operators.
func (r Report) Line() string {
	switch {
	case r.Outcome == OutcomeFailed:
		return fmt.Sprintf("asset=%s failed at %s: %s", r.Asset, r.Stage, r.Error)
	case r.Result != nil:
		line := fmt.Sprintf("asset=%s %s", r.Asset, r.Result.String())
		if r.Anomalous() {
			line += " [ANOMALY]"
		}
		return line
	}
	return fmt.Sprintf("asset=%s %s", r.Asset, r.Outcome)
}

// FromError fills the failure fields of r from err.
func (r *Report) FromError(stage string, err error) {
	r.Outcome = OutcomeFailed
	r.Stage = stage
	r.Error = err.Error()
	r.ErrorKind = errors.KindOf(err)

	var re *errors.RemoteError
	if errors.As(err, &re) {
		r.Status = re.Status
	}
}
