package domain

// AssetID identifies a monitored asset. It is a lookup key only and is never parsed.
type AssetID string

// DefaultAsset is the sentinel asset polled when none is configured.
const DefaultAsset AssetID = "M1"

// ReadingSet is one observation window for an asset. Values are kept as the
// strings the data provider sent; position is significant.
type ReadingSet struct {
	Asset        AssetID
	Values       []string
	FeatureNames []string // optional, positional with Values
	AssetType    string   // optional metadata from the provider
}

// Len returns the number of readings.
func (r ReadingSet) Len() int { return len(r.Values) }

// DiagnosisRequest wraps one ReadingSet for submission.
type DiagnosisRequest struct {
	Readings ReadingSet
}

// NewDiagnosisRequest copies the readings so later changes to rs cannot leak
// into a request already handed to a diagnoser.
func NewDiagnosisRequest(rs ReadingSet) DiagnosisRequest {
	values := make([]string, len(rs.Values))
	copy(values, rs.Values)
	rs.Values = values
	return DiagnosisRequest{Readings: rs}
}

// Status codes synthesized locally. Remote services may return others
// (the inference service answers "0" for healthy, "1" for faulty).
const (
	StatusOK        = "OK"
	StatusError     = "ERROR"
	StatusException = "EXCEPTION"

	StatusHealthy = "0"
	StatusFaulty  = "1"
)

// DescServiceUnavailable is the description of the result synthesized when a
// diagnose call fails under the degraded policy.
const DescServiceUnavailable = "Service unavailable"

// DiagnosisResult is the verdict of one diagnose attempt.
type DiagnosisResult struct {
	StatusCode        string `json:"statusCode"`
	StatusDescription string `json:"statusDescription"`

	// synthesized is set for results built locally in place of a remote
	// verdict. It is not serialized.
	synthesized bool
}

// String mirrors the "<code> - <description>" form operators are used to.
func (r DiagnosisResult) String() string {
	return r.StatusCode + " - " + r.StatusDescription
}

// Synthesized reports whether the result was produced locally rather than
// decoded from a remote answer. A remote "ERROR" is not synthesized.
func (r DiagnosisResult) Synthesized() bool {
	return r.synthesized
}

// LocalResult builds a synthesized result with the given code.
func LocalResult(code, description string) DiagnosisResult {
	return DiagnosisResult{StatusCode: code, StatusDescription: description, synthesized: true}
}

// ServiceUnavailable builds the degraded result used in place of a remote failure.
func ServiceUnavailable() DiagnosisResult {
	return LocalResult(StatusError, DescServiceUnavailable)
}
