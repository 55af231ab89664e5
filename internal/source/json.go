package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/herbieproject/herbie-dash/internal/config"
	"github.com/herbieproject/herbie-dash/internal/snapshot"
)

type jsonReader struct {
	src    config.Source
	client *resty.Client
}

// jsonEnvelope is the object form of a JSON payload: {"fields": [...], "records": [...]}.
type jsonEnvelope struct {
	Fields  []string          `json:"fields"`
	Records []snapshot.Record `json:"records"`
}

// Fetch GETs the endpoint. The payload is either a bare array of row objects
// or an envelope carrying an explicit field order.
func (r *jsonReader) Fetch(ctx context.Context) (snapshot.Raw, error) {
	body, err := getBody(ctx, r.client, r.src.Endpoint, "application/json")
	if err != nil {
		return snapshot.Raw{}, unavailable(r.src, err)
	}
	raw, err := decodeJSON(body)
	if err != nil {
		return snapshot.Raw{}, unavailable(r.src, err)
	}
	return raw, nil
}

func decodeJSON(body []byte) (snapshot.Raw, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return snapshot.Raw{}, fmt.Errorf("decode json: empty body")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	if trimmed[0] == '[' {
		var recs []snapshot.Record
		if err := dec.Decode(&recs); err != nil {
			return snapshot.Raw{}, fmt.Errorf("decode json: %w", err)
		}
		return snapshot.Raw{Records: recs}, nil
	}

	var env jsonEnvelope
	if err := dec.Decode(&env); err != nil {
		return snapshot.Raw{}, fmt.Errorf("decode json: %w", err)
	}
	return snapshot.Raw{Fields: env.Fields, Records: env.Records}, nil
}
