package source

import (
	"bytes"
	"context"
	"net/url"

	"github.com/go-resty/resty/v2"

	"github.com/herbieproject/herbie-dash/internal/config"
	"github.com/herbieproject/herbie-dash/internal/snapshot"
)

const gsheetExportBase = "https://docs.google.com/spreadsheets/d/"

type gsheetReader struct {
	src    config.Source
	client *resty.Client
}

// Fetch downloads the sheet as CSV through the export endpoint.
func (r *gsheetReader) Fetch(ctx context.Context) (snapshot.Raw, error) {
	body, err := getBody(ctx, r.client, exportURL(r.src), "text/csv")
	if err != nil {
		return snapshot.Raw{}, unavailable(r.src, err)
	}
	raw, err := parseCSV(bytes.NewReader(body))
	if err != nil {
		return snapshot.Raw{}, unavailable(r.src, err)
	}
	return raw, nil
}

// exportURL returns the configured endpoint, or the public CSV export URL
// built from SpreadsheetID and GID.
func exportURL(src config.Source) string {
	if src.Endpoint != "" {
		return src.Endpoint
	}
	q := url.Values{}
	q.Set("format", "csv")
	if src.GID != "" {
		q.Set("gid", src.GID)
	}
	return gsheetExportBase + url.PathEscape(src.SpreadsheetID) + "/export?" + q.Encode()
}
