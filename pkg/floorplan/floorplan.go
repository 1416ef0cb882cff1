// Package floorplan fetches a single floor-plan image by URL. Rendering a
// map-tile pipeline on top of it is an explicit Non-goal; this is the one
// piece of that surface the system actually owns.
package floorplan

import (
	"context"
	"io"
	"net/http"

	"github.com/netwatch-hq/netwatch/pkg/neterrors"
)

const maxImageBytes = 16 << 20 // 16MiB, generous for a single floor plan

// Fetch GETs url and returns its body and Content-Type header. It does not
// decode or validate the image; callers that need dimensions or format
// checks do so themselves.
func Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", neterrors.Wrap(neterrors.KindUnavailable, "build floor plan request", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", neterrors.Wrap(neterrors.KindUnavailable, "fetch floor plan image", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return nil, "", neterrors.New(neterrors.KindUnavailable, http.StatusText(resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", neterrors.Wrap(neterrors.KindUnavailable, "read floor plan body", err)
	}

	return data, resp.Header.Get("Content-Type"), nil
}
