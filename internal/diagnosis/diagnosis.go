// Package diagnosis submits readings to an inference backend and returns its verdict.
//
// Two backends exist: RemoteDiagnoser posts to the diagnosis engine over HTTP,
// ProcessDiagnoser pipes the readings through a local inference process.
package diagnosis

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"diagnosys-poller/internal/domain"
	"diagnosys-poller/internal/errors"
	"diagnosys-poller/internal/transport"
)

// Diagnoser classifies one ReadingSet.
type Diagnoser interface {
	Diagnose(ctx context.Context, req domain.DiagnosisRequest) (domain.DiagnosisResult, error)
}

// Policy decides what a non-success answer from the diagnosis engine becomes.
type Policy string

const (
	// PolicyStrict propagates the failure as a RemoteError.
	PolicyStrict Policy = "strict"
	// PolicyDegraded replaces the failure with an ERROR/"Service unavailable" result.
	PolicyDegraded Policy = "degraded"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyStrict, PolicyDegraded:
		return p, nil
	case "":
		return PolicyDegraded, nil
	}
	return "", errors.Wrapf(errors.ErrInvalidConfig, "unknown diagnose policy %q", s)
}

// Backend selects the Diagnoser implementation.
type Backend string

const (
	BackendRemote  Backend = "remote"
	BackendProcess Backend = "process"
)

// ParseBackend validates a backend name.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendRemote, BackendProcess:
		return b, nil
	case "":
		return BackendRemote, nil
	}
	return "", errors.Wrapf(errors.ErrInvalidConfig, "unknown diagnose backend %q", s)
}

// Config selects and configures a backend.
type Config struct {
	Backend Backend
	Policy  Policy
	BaseURL string
	Process ProcessConfig
}

// New builds the Diagnoser described by cfg.
func New(cfg Config, client *transport.Client, logger *zap.SugaredLogger) (Diagnoser, error) {
	switch cfg.Backend {
	case BackendRemote, "":
		return NewRemoteDiagnoser(cfg.BaseURL, cfg.Policy, client, logger), nil
	case BackendProcess:
		return NewProcessDiagnoser(cfg.Process, logger)
	}
	return nil, errors.Wrapf(errors.ErrInvalidConfig, "unknown diagnose backend %q", cfg.Backend)
}
