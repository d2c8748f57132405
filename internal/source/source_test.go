package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diagnosys-poller/internal/errors"
	"diagnosys-poller/internal/transport"
)

func TestHTTPSource_FetchReadings(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/values", r.URL.Path)
			assert.Equal(t, "M1", r.URL.Query().Get("asset_id"))
			w.Write([]byte(`{"values":["1","3","0","0","0","0","0","0","0","0"]}`))
		}))
		defer server.Close()

		src := NewHTTPSource(server.URL+"/", transport.NewClient(transport.Options{}))
		rs, err := src.FetchReadings(context.Background(), "M1")

		require.NoError(t, err)
		assert.Equal(t, 10, rs.Len())
		assert.Equal(t, "1", rs.Values[0])
		assert.Equal(t, "3", rs.Values[1])
	})

	t.Run("NotFoundIsRemoteError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"detail":"Asset X9 not found"}`, http.StatusNotFound)
		}))
		defer server.Close()

		src := NewHTTPSource(server.URL, transport.NewClient(transport.Options{}))
		_, err := src.FetchReadings(context.Background(), "X9")

		var re *errors.RemoteError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, "fetch", re.Stage)
		assert.Equal(t, http.StatusNotFound, re.Status)
		assert.Contains(t, re.Body, "not found")
	})

	t.Run("MalformedIsParseError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"samples":[{"voltage":400}]}`))
		}))
		defer server.Close()

		src := NewHTTPSource(server.URL, transport.NewClient(transport.Options{}))
		_, err := src.FetchReadings(context.Background(), "M1")

		assert.Equal(t, errors.KindParse, errors.KindOf(err))
	})

	t.Run("UnreachableIsTransportError", func(t *testing.T) {
		src := NewHTTPSource("http://127.0.0.1:1", transport.NewClient(transport.Options{}))
		_, err := src.FetchReadings(context.Background(), "M1")

		assert.Equal(t, errors.KindTransport, errors.KindOf(err))
	})
}

func TestHTTPSource_EndpointEscapesAsset(t *testing.T) {
	src := NewHTTPSource("http://svc:8000", nil)

	assert.Equal(t, "http://svc:8000/values?asset_id=M1", src.Endpoint("M1"))
	assert.Equal(t, "http://svc:8000/values?asset_id=a+b%26c", src.Endpoint("a b&c"))
}
