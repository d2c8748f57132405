package diagnosis

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diagnosys-poller/internal/domain"
	"diagnosys-poller/internal/errors"
	"diagnosys-poller/internal/transport"
)

func sampleRequest() domain.DiagnosisRequest {
	return domain.NewDiagnosisRequest(domain.ReadingSet{
		Asset:  "M1",
		Values: []string{"1", "3", "0"},
	})
}

func TestRemoteDiagnoser_Diagnose(t *testing.T) {
	t.Run("PostsValuesAndDecodesResult", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, EnginePath, r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"values":["1","3","0"]}`, string(body))

			json.NewEncoder(w).Encode(domain.DiagnosisResult{StatusCode: "1", StatusDescription: "FAULTY"})
		}))
		defer server.Close()

		d := NewRemoteDiagnoser(server.URL+"/", PolicyStrict, transport.NewClient(transport.Options{}), nil)
		res, err := d.Diagnose(context.Background(), sampleRequest())

		require.NoError(t, err)
		assert.Equal(t, "1", res.StatusCode)
		assert.Equal(t, "FAULTY", res.StatusDescription)
	})

	t.Run("ServerErrorUnderPolicy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer server.Close()
		client := transport.NewClient(transport.Options{})

		strict := NewRemoteDiagnoser(server.URL, PolicyStrict, client, nil)
		_, err := strict.Diagnose(context.Background(), sampleRequest())
		var re *errors.RemoteError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, "diagnose", re.Stage)
		assert.Equal(t, http.StatusInternalServerError, re.Status)

		degraded := NewRemoteDiagnoser(server.URL, PolicyDegraded, client, nil)
		res, err := degraded.Diagnose(context.Background(), sampleRequest())
		require.NoError(t, err)
		assert.Equal(t, domain.ServiceUnavailable(), res)
	})

	t.Run("TransportErrorPropagatesUnderDegraded", func(t *testing.T) {
		d := NewRemoteDiagnoser("http://127.0.0.1:1", PolicyDegraded, transport.NewClient(transport.Options{}), nil)
		_, err := d.Diagnose(context.Background(), sampleRequest())

		assert.Equal(t, errors.KindTransport, errors.KindOf(err))
	})

	t.Run("MissingStatusCodeIsParseError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"statusDescription":"HEALTHY"}`))
		}))
		defer server.Close()

		d := NewRemoteDiagnoser(server.URL, PolicyDegraded, transport.NewClient(transport.Options{}), nil)
		_, err := d.Diagnose(context.Background(), sampleRequest())

		assert.Equal(t, errors.KindParse, errors.KindOf(err))
	})

	t.Run("EmptyPolicyDefaultsToDegraded", func(t *testing.T) {
		d := NewRemoteDiagnoser("http://svc", "", nil, nil)
		assert.Equal(t, PolicyDegraded, d.Policy())
	})
}

func TestParsePolicyAndBackend(t *testing.T) {
	p, err := ParsePolicy(" Strict ")
	require.NoError(t, err)
	assert.Equal(t, PolicyStrict, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyDegraded, p)

	_, err = ParsePolicy("lenient")
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))

	b, err := ParseBackend("PROCESS")
	require.NoError(t, err)
	assert.Equal(t, BackendProcess, b)

	b, err = ParseBackend("")
	require.NoError(t, err)
	assert.Equal(t, BackendRemote, b)

	_, err = ParseBackend("grpc")
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
}

func TestNew(t *testing.T) {
	d, err := New(Config{BaseURL: "http://svc"}, transport.NewClient(transport.Options{}), nil)
	require.NoError(t, err)
	assert.IsType(t, &RemoteDiagnoser{}, d)

	d, err = New(Config{Backend: BackendProcess, Process: ProcessConfig{Command: "cat"}}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &ProcessDiagnoser{}, d)

	_, err = New(Config{Backend: "grpc"}, nil, nil)
	assert.Error(t, err)
}
