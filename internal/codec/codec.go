// Package codec converts readings and diagnosis verdicts to and from the JSON
// wire format spoken by the data provider, the diagnosis engine and the local
// inference process.
package codec

import (
	"bytes"
	"encoding/json"
	"strconv"

	"diagnosys-poller/internal/domain"
	"diagnosys-poller/internal/errors"
)

const (
	StageFetch    = "fetch"
	StageDiagnose = "diagnose"
)

// PredictionsMarker is the substring the local inference process prints on success.
//
// Nothing guarantees the marker is absent on failure; it is kept because the
// process has no other success signal.
const PredictionsMarker = `"predictions"`

type diagnoseRequest struct {
	Values []string `json:"values"`
}

type windowsPayload struct {
	Windows [][]json.RawMessage `json:"windows"`
}

// EncodeRequest serializes req as {"values":[...]}. Values stay strings and
// keep their order.
func EncodeRequest(req domain.DiagnosisRequest) ([]byte, error) {
	values := req.Readings.Values
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(diagnoseRequest{Values: values})
	if err != nil {
		return nil, errors.Wrap(err, "encode diagnosis request")
	}
	return data, nil
}

// DecodeReadings parses a /values response. The "values" key must be present
// and hold an array of strings; a null or non-string element is malformed.
// asset_type and feature_names are optional metadata: when present but
// unreadable they are dropped and the readings are still returned.
func DecodeReadings(asset domain.AssetID, body []byte) (domain.ReadingSet, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.ReadingSet{}, errors.NewParseError(StageFetch, err)
	}

	valuesRaw, ok := raw["values"]
	if !ok || isNull(valuesRaw) {
		return domain.ReadingSet{}, errors.NewParseError(StageFetch, errors.New(`missing "values" key`))
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(valuesRaw, &elems); err != nil {
		return domain.ReadingSet{}, errors.NewParseError(StageFetch, errors.Wrap(err, `"values" must be an array`))
	}
	values := make([]string, len(elems))
	for i, elem := range elems {
		var v *string
		if err := json.Unmarshal(elem, &v); err != nil || v == nil {
			return domain.ReadingSet{}, errors.NewParseError(StageFetch,
				errors.Newf(`"values"[%d] must be a string, got %s`, i, elem))
		}
		values[i] = *v
	}

	rs := domain.ReadingSet{Asset: asset, Values: values}
	decodeOptional(raw["asset_type"], &rs.AssetType)
	decodeOptional(raw["feature_names"], &rs.FeatureNames)
	return rs, nil
}

// decodeOptional unmarshals an optional metadata field, leaving dst untouched
// when the field is absent or has an unexpected shape.
func decodeOptional[T any](field json.RawMessage, dst *T) {
	if len(field) == 0 || isNull(field) {
		return
	}
	var v T
	if err := json.Unmarshal(field, &v); err == nil {
		*dst = v
	}
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// DecodeResult parses a /diagnosys/engine response. statusCode is required.
func DecodeResult(body []byte) (domain.DiagnosisResult, error) {
	var result struct {
		StatusCode        *string `json:"statusCode"`
		StatusDescription string  `json:"statusDescription"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return domain.DiagnosisResult{}, errors.NewParseError(StageDiagnose, err)
	}
	if result.StatusCode == nil {
		return domain.DiagnosisResult{}, errors.NewParseError(StageDiagnose, errors.New(`missing "statusCode"`))
	}
	return domain.DiagnosisResult{
		StatusCode:        *result.StatusCode,
		StatusDescription: result.StatusDescription,
	}, nil
}

// EncodeWindows builds the {"windows":[[...]]} document written to the local
// inference process. Values that parse as numbers are written as JSON
// numbers, anything else as a JSON string.
func EncodeWindows(rs domain.ReadingSet) ([]byte, error) {
	window := make([]json.RawMessage, 0, len(rs.Values))
	for _, v := range rs.Values {
		if isJSONNumber(v) {
			window = append(window, json.RawMessage(v))
			continue
		}
		quoted, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrap(err, "encode window value")
		}
		window = append(window, quoted)
	}

	data, err := json.Marshal(windowsPayload{Windows: [][]json.RawMessage{window}})
	if err != nil {
		return nil, errors.Wrap(err, "encode windows")
	}
	return data, nil
}

// HasPredictions reports whether process output carries the success marker.
func HasPredictions(out []byte) bool {
	return bytes.Contains(out, []byte(PredictionsMarker))
}

// isJSONNumber rejects NaN, Inf and hex forms that strconv accepts but JSON does not.
func isJSONNumber(s string) bool {
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return false
	}
	return json.Valid([]byte(s))
}
