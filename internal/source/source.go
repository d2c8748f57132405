// Package source fetches the current readings of an asset from the data provider.
package source

import (
	"context"
	"net/url"
	"strings"

	"diagnosys-poller/internal/codec"
	"diagnosys-poller/internal/domain"
	"diagnosys-poller/internal/errors"
	"diagnosys-poller/internal/transport"
)

// Source returns the current ReadingSet of an asset.
type Source interface {
	FetchReadings(ctx context.Context, asset domain.AssetID) (domain.ReadingSet, error)
}

// HTTPSource reads GET <base>/values?asset_id=<id>. It never retries.
type HTTPSource struct {
	baseURL string
	client  *transport.Client
}

// NewHTTPSource creates a source rooted at baseURL.
func NewHTTPSource(baseURL string, client *transport.Client) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Endpoint returns the URL polled for asset.
func (s *HTTPSource) Endpoint(asset domain.AssetID) string {
	return s.baseURL + "/values?" + url.Values{"asset_id": {string(asset)}}.Encode()
}

// FetchReadings implements Source.
func (s *HTTPSource) FetchReadings(ctx context.Context, asset domain.AssetID) (domain.ReadingSet, error) {
	resp, err := s.client.Get(ctx, codec.StageFetch, s.Endpoint(asset))
	if err != nil {
		return domain.ReadingSet{}, err
	}

	if !resp.OK() {
		return domain.ReadingSet{}, &errors.RemoteError{
			Stage:  codec.StageFetch,
			Status: resp.Status,
			Body:   string(resp.Body),
		}
	}

	return codec.DecodeReadings(asset, resp.Body)
}
