package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDiagnosisRequestCopiesValues(t *testing.T) {
	rs := ReadingSet{Asset: "M1", Values: []string{"1", "3", "0"}}
	req := NewDiagnosisRequest(rs)

	rs.Values[0] = "9"

	assert.Equal(t, []string{"1", "3", "0"}, req.Readings.Values)
	assert.Equal(t, 3, req.Readings.Len())
}

func TestDiagnosisResult(t *testing.T) {
	t.Run("ServiceUnavailable", func(t *testing.T) {
		r := ServiceUnavailable()
		assert.Equal(t, "ERROR", r.StatusCode)
		assert.Equal(t, "Service unavailable", r.StatusDescription)
		assert.True(t, r.Synthesized())
	})

	t.Run("Remote", func(t *testing.T) {
		r := DiagnosisResult{StatusCode: "1", StatusDescription: "FAULTY"}
		assert.False(t, r.Synthesized())
		assert.Equal(t, "1 - FAULTY", r.String())
	})

	t.Run("RemoteErrorCodeIsNotSynthesized", func(t *testing.T) {
		r := DiagnosisResult{StatusCode: StatusError, StatusDescription: "model not loaded"}
		assert.False(t, r.Synthesized())
		assert.True(t, LocalResult(StatusError, "model not loaded").Synthesized())
	})
}
