package health

import (
	"diagnosys-poller/internal/metrics"
)

// HealthStatus represents overall poller health.
type HealthStatus string

const (
	StatusOK       HealthStatus = "OK"
	StatusDegraded HealthStatus = "DEGRADED"
	StatusCritical HealthStatus = "CRITICAL"
)

// HealthReport is the rule-based health summary.
type HealthReport struct {
	OverallStatus   HealthStatus `json:"overall_status"`
	Summary         string       `json:"summary"`
	Signals         []string     `json:"signals"`
	Recommendations []string     `json:"recommendations"`
}

// RuleResult represents the outcome of a single rule.
type RuleResult struct {
	Triggered      bool
	Signal         string
	Recommendation string
	Severity       HealthStatus
}

// Rule evaluates a metrics snapshot.
type Rule func(snapshot map[string]int64) RuleResult

// ---------- RULES ----------

// FetchFailureRule flags cycles that never reached the diagnosis stage.
func FetchFailureRule(snapshot map[string]int64) RuleResult {
	if snapshot[string(metrics.FetchFailuresTotal)] > 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "Reading fetches failed",
			Recommendation: "Check the data provider URL and the configured asset identifiers",
			Severity:       StatusDegraded,
		}
	}
	return RuleResult{}
}

// DegradedDiagnosisRule flags diagnoses replaced by a locally synthesized result.
func DegradedDiagnosisRule(snapshot map[string]int64) RuleResult {
	if snapshot[string(metrics.DiagnoseDegradedTotal)] > 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "Diagnoses returned degraded results",
			Recommendation: "Check the diagnosis engine availability or the inference process output",
			Severity:       StatusDegraded,
		}
	}
	return RuleResult{}
}

// ProcessExceptionRule flags inference processes that could not run.
func ProcessExceptionRule(snapshot map[string]int64) RuleResult {
	if snapshot[string(metrics.ProcessExceptionsTotal)] > 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "Inference process failed to run",
			Recommendation: "Verify diagnose.command, its working directory and interpreter",
			Severity:       StatusDegraded,
		}
	}
	return RuleResult{}
}

// UnhealthyEndpointRule flags endpoints past their failure threshold.
func UnhealthyEndpointRule(snapshot map[string]int64) RuleResult {
	if snapshot[string(metrics.EndpointsUnhealthy)] > 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "One or more endpoints are unhealthy",
			Recommendation: "Inspect endpoint health and network connectivity",
			Severity:       StatusCritical,
		}
	}
	return RuleResult{}
}

// SinkFailureRule flags report deliveries that did not succeed.
func SinkFailureRule(snapshot map[string]int64) RuleResult {
	if snapshot[string(metrics.SinkFailuresTotal)] > 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "Report sinks are failing",
			Recommendation: "Check redis, webhook and history settings",
			Severity:       StatusDegraded,
		}
	}
	return RuleResult{}
}
