package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diagnosys-poller/internal/domain"
	"diagnosys-poller/internal/errors"
)

func TestEncodeRequest(t *testing.T) {
	t.Run("PreservesOrderAndStrings", func(t *testing.T) {
		req := domain.NewDiagnosisRequest(domain.ReadingSet{Values: []string{"1", "3", "0"}})

		data, err := EncodeRequest(req)
		require.NoError(t, err)
		assert.Equal(t, `{"values":["1","3","0"]}`, string(data))
	})

	t.Run("EmptyReadings", func(t *testing.T) {
		data, err := EncodeRequest(domain.DiagnosisRequest{})
		require.NoError(t, err)
		assert.Equal(t, `{"values":[]}`, string(data))
	})
}

func TestDecodeReadings(t *testing.T) {
	t.Run("ValuesOnly", func(t *testing.T) {
		rs, err := DecodeReadings("M1", []byte(`{"values":["1","3","0","0"]}`))
		require.NoError(t, err)
		assert.Equal(t, domain.AssetID("M1"), rs.Asset)
		assert.Equal(t, []string{"1", "3", "0", "0"}, rs.Values)
	})

	t.Run("WithMetadata", func(t *testing.T) {
		body := `{"asset_id":"P2","asset_type":"pump","values":["0.1","0.2"],"feature_names":["vib_hf_z","vib_rms_z"]}`
		rs, err := DecodeReadings("P2", []byte(body))
		require.NoError(t, err)
		assert.Equal(t, "pump", rs.AssetType)
		assert.Equal(t, []string{"vib_hf_z", "vib_rms_z"}, rs.FeatureNames)
	})

	t.Run("EmptyArrayIsValid", func(t *testing.T) {
		rs, err := DecodeReadings("M1", []byte(`{"values":[]}`))
		require.NoError(t, err)
		assert.Equal(t, 0, rs.Len())
	})

	t.Run("UnreadableMetadataIsDropped", func(t *testing.T) {
		body := `{"asset_id":7,"asset_type":"pump","values":["1","3"],"feature_names":["a",2]}`
		rs, err := DecodeReadings("M1", []byte(body))
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "3"}, rs.Values)
		assert.Equal(t, "pump", rs.AssetType)
		assert.Nil(t, rs.FeatureNames)
	})

	malformed := map[string]string{
		"NullElement":  `{"values":["1",null,"0"]}`,
		"MixedElement": `{"values":["1",2,"0"]}`,
		"NestedArray":  `{"values":[["1"]]}`,
		"NotJSON":      `garbage`,
		"MissingKey":   `{"samples":[]}`,
		"NullValues":   `{"values":null}`,
		"NumericArray": `{"values":[1,2,3]}`,
		"NotArray":     `{"values":"1,2,3"}`,
		"TopLevelList": `["1","2"]`,
	}
	for name, body := range malformed {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeReadings("M1", []byte(body))
			require.Error(t, err)
			assert.Equal(t, errors.KindParse, errors.KindOf(err))
		})
	}
}

func TestDecodeResult(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		res, err := DecodeResult([]byte(`{"statusCode":"1","statusDescription":"anomaly detected"}`))
		require.NoError(t, err)
		assert.Equal(t, domain.DiagnosisResult{StatusCode: "1", StatusDescription: "anomaly detected"}, res)
	})

	t.Run("MissingStatusCode", func(t *testing.T) {
		_, err := DecodeResult([]byte(`{"statusDescription":"x"}`))
		assert.Equal(t, errors.KindParse, errors.KindOf(err))
	})

	t.Run("Malformed", func(t *testing.T) {
		_, err := DecodeResult([]byte(`<html>`))
		assert.Equal(t, errors.KindParse, errors.KindOf(err))
	})
}

func TestEncodeWindows(t *testing.T) {
	rs := domain.ReadingSet{Values: []string{"1", "0.25", "-3e2", "NaN", "abc"}}

	data, err := EncodeWindows(rs)
	require.NoError(t, err)
	assert.Equal(t, `{"windows":[[1,0.25,-3e2,"NaN","abc"]]}`, string(data))
}

func TestHasPredictions(t *testing.T) {
	assert.True(t, HasPredictions([]byte(`{"predictions":[0]}`)))
	assert.False(t, HasPredictions([]byte(`"garbage"`)))
	assert.False(t, HasPredictions([]byte(`{"statusCode":"0"}`)))
}
