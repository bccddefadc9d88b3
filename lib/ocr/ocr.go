// Package ocr is a client for a captcha recognition service that accepts a
// base64 encoded image and answers with {"result": "<text>"}.
package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"spoccrawler/lib/restyutil"
	"spoccrawler/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("spoccrawler/lib/ocr")

var ErrNoText = errors.New("ocr service recognized no text")

// BodyFormat is how the image is put into the request body.
type BodyFormat string

const (
	// FormatRaw posts the base64 text itself as the body.
	FormatRaw BodyFormat = "raw"
	// FormatJson posts {"image": "<base64>"}.
	FormatJson BodyFormat = "json"
)

func ParseBodyFormat(value string) (BodyFormat, error) {
	switch BodyFormat(value) {
	case "", FormatRaw:
		return FormatRaw, nil
	case FormatJson:
		return FormatJson, nil
	}
	return "", fmt.Errorf("unknown ocr body format: %q", value)
}

type request struct {
	Image string `json:"image"`
}

type response struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

type Client struct {
	endpoint string
	format   BodyFormat
	http     *resty.Client
}

// NewClient creates a client posting images to `endpoint`, an empty format
// means FormatRaw. `output` can be nil.
func NewClient(endpoint string, format BodyFormat, output restyutil.InstrumentOutput) *Client {
	if format == "" {
		format = FormatRaw
	}
	client := resty.New()
	restyutil.InstrumentClient(client, tracer, output)
	return &Client{
		endpoint: endpoint,
		format:   format,
		http:     client,
	}
}

func (c *Client) body(image []byte) any {
	encoded := base64.StdEncoding.EncodeToString(image)
	if c.format == FormatJson {
		return request{Image: encoded}
	}
	return []byte(encoded)
}

func (c *Client) Solve(ctx context.Context, image []byte) (string, error) {
	ctx, span := tracer.Start(ctx, "Client:Solve")
	defer span.End()

	var body response
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(c.body(image)).
		// the service does not always label its answer as json
		ForceContentType("application/json").
		SetResult(&body).
		SetError(&body).
		Post(c.endpoint)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if res.IsError() {
		err = fmt.Errorf("ocr service responded with status %d: %s", res.StatusCode(), body.Error)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	text := strings.TrimSpace(body.Result)
	if text == "" {
		span.SetStatus(codes.Error, ErrNoText.Error())
		return "", ErrNoText
	}
	return text, nil
}
