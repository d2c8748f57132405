package diagnosis

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"diagnosys-poller/internal/codec"
	"diagnosys-poller/internal/domain"
	"diagnosys-poller/internal/errors"
	"diagnosys-poller/internal/logger"
	"diagnosys-poller/internal/transport"
)

// EnginePath is the diagnosis engine endpoint relative to its base URL.
const EnginePath = "/diagnosys/engine"

// RemoteDiagnoser posts readings to <base>/diagnosys/engine.
type RemoteDiagnoser struct {
	endpoint string
	policy   Policy
	client   *transport.Client
	logger   *zap.SugaredLogger
}

// NewRemoteDiagnoser creates a remote backend. The policy is fixed for the
// diagnoser's lifetime so every cycle handles failures the same way.
func NewRemoteDiagnoser(baseURL string, policy Policy, client *transport.Client, l *zap.SugaredLogger) *RemoteDiagnoser {
	if policy == "" {
		policy = PolicyDegraded
	}
	return &RemoteDiagnoser{
		endpoint: strings.TrimRight(baseURL, "/") + EnginePath,
		policy:   policy,
		client:   client,
		logger:   logger.OrNop(l),
	}
}

// Policy returns the failure policy in effect.
func (d *RemoteDiagnoser) Policy() Policy { return d.policy }

// Diagnose implements Diagnoser.
//
// Under PolicyDegraded a non-success status yields ERROR/"Service unavailable"
// and a nil error. Transport and parse failures are returned under both policies.
func (d *RemoteDiagnoser) Diagnose(ctx context.Context, req domain.DiagnosisRequest) (domain.DiagnosisResult, error) {
	body, err := codec.EncodeRequest(req)
	if err != nil {
		return domain.DiagnosisResult{}, err
	}

	resp, err := d.client.Post(ctx, codec.StageDiagnose, d.endpoint, "application/json", body)
	if err != nil {
		return domain.DiagnosisResult{}, err
	}

	if !resp.OK() {
		remoteErr := &errors.RemoteError{
			Stage:  codec.StageDiagnose,
			Status: resp.Status,
			Body:   string(resp.Body),
		}
		if d.policy == PolicyStrict {
			return domain.DiagnosisResult{}, remoteErr
		}
		d.logger.Warnw("Diagnosis engine unavailable, using degraded result",
			"asset", req.Readings.Asset,
			"status", resp.Status,
			"body", string(resp.Body))
		return domain.ServiceUnavailable(), nil
	}

	return codec.DecodeResult(resp.Body)
}
