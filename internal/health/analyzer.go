// Package health condenses metrics, endpoint state and recent reports into
// a single health verdict for the status API.
package health

import (
	"fmt"
	"sort"
	"strings"

	"diagnosys-poller/internal/metrics"
	"diagnosys-poller/internal/report"
)

// failureStreak is how many consecutive failed cycles of one asset make the
// poller critical.
const failureStreak = 3

// ReportSource returns recent reports, oldest first.
type ReportSource interface {
	GetLast(n int) []report.Report
}

// EndpointSource lists unhealthy endpoints.
type EndpointSource interface {
	Unhealthy() []string
}

// Analyzer converts metrics + reports into a health report.
type Analyzer struct {
	metrics   *metrics.Registry
	reports   ReportSource
	endpoints EndpointSource
	rules     []Rule
}

// NewAnalyzer creates a new analyzer. reports and endpoints may be nil.
func NewAnalyzer(reg *metrics.Registry, reports ReportSource, endpoints EndpointSource) *Analyzer {
	return &Analyzer{
		metrics:   reg,
		reports:   reports,
		endpoints: endpoints,
		rules: []Rule{
			FetchFailureRule,
			DegradedDiagnosisRule,
			ProcessExceptionRule,
			UnhealthyEndpointRule,
			SinkFailureRule,
		},
	}
}

// Analyze evaluates metrics and reports and returns a health report.
func (a *Analyzer) Analyze() HealthReport {
	snapshot := a.metrics.Snapshot()

	var (
		signals         = []string{}
		recommendations = []string{}
		status          = StatusOK
	)
	escalate := func(s HealthStatus) {
		if s == StatusCritical {
			status = StatusCritical
		} else if s == StatusDegraded && status == StatusOK {
			status = StatusDegraded
		}
	}

	/* ---------- METRICS-BASED RULES ---------- */

	for _, rule := range a.rules {
		result := rule(snapshot)
		if !result.Triggered {
			continue
		}
		signals = append(signals, result.Signal)
		recommendations = append(recommendations, result.Recommendation)
		escalate(result.Severity)
	}

	if a.endpoints != nil {
		if names := a.endpoints.Unhealthy(); len(names) > 0 {
			signals = append(signals, "Unhealthy endpoints: "+strings.Join(names, ", "))
		}
	}

	/* ---------- REPORT-BASED SIGNALS ---------- */

	if a.reports != nil {
		recent := a.reports.GetLast(100)

		if failing := failingAssets(recent); len(failing) > 0 {
			signals = append(signals,
				fmt.Sprintf("Consecutive failed cycles for: %s", strings.Join(failing, ", ")),
			)
			recommendations = append(recommendations,
				"Inspect the last reports of the failing assets",
			)
			escalate(StatusCritical)
		}

		if anomalous := anomalousAssets(recent); len(anomalous) > 0 {
			signals = append(signals,
				fmt.Sprintf("Anomalies reported for: %s", strings.Join(anomalous, ", ")),
			)
			recommendations = append(recommendations,
				"Schedule an inspection of the flagged assets",
			)
		}
	}

	/* ---------- SUMMARY ---------- */

	summary := "Poller is healthy"
	if status != StatusOK {
		summary = "Poller health issues detected"
	}

	return HealthReport{
		OverallStatus:   status,
		Summary:         summary,
		Signals:         signals,
		Recommendations: recommendations,
	}
}

// failingAssets returns assets whose latest failureStreak reports all failed.
func failingAssets(reports []report.Report) []string {
	streak := map[string]int{}
	for _, r := range reports {
		if r.Outcome == report.OutcomeFailed {
			streak[string(r.Asset)]++
		} else {
			streak[string(r.Asset)] = 0
		}
	}
	var out []string
	for asset, n := range streak {
		if n >= failureStreak {
			out = append(out, asset)
		}
	}
	sort.Strings(out)
	return out
}

// anomalousAssets returns assets whose latest report is anomalous.
func anomalousAssets(reports []report.Report) []string {
	latest := map[string]bool{}
	for _, r := range reports {
		if r.Outcome == report.OutcomeFailed {
			continue
		}
		latest[string(r.Asset)] = r.Anomalous()
	}
	var out []string
	for asset, anomalous := range latest {
		if anomalous {
			out = append(out, asset)
		}
	}
	sort.Strings(out)
	return out
}
