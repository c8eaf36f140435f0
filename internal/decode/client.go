// Package decode fetches vehicle attributes for a VIN from the NHTSA vPIC
// DecodeVinValues endpoint.
package decode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/devghori1264/vinreport/internal/models"
	"go.uber.org/zap"
)

// DefaultBaseURL is the public vPIC API root.
const DefaultBaseURL = "https://vpic.nhtsa.dot.gov/api/vehicles"

const maxBodyBytes = 2 * 1024 * 1024

// Fetcher is implemented by anything that can turn a VIN into a record.
type Fetcher interface {
	Fetch(ctx context.Context, vin string) (models.VehicleRecord, error)
}

// Client performs a single decode request per call. It does not retry.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another vPIC-compatible endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithLogger sets the client's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewHTTPClient returns the process-wide transport used for decode calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// NewClient wraps hc, which is shared and read-only after construction.
func NewClient(hc *http.Client, opts ...Option) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	c := &Client{baseURL: DefaultBaseURL, http: hc, log: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

type decodeResponse struct {
	Count          int              `json:"Count"`
	Message        string           `json:"Message"`
	SearchCriteria string           `json:"SearchCriteria"`
	Results        []map[string]any `json:"Results"`
}

// Fetch returns the first decoded result for vin.
func (c *Client) Fetch(ctx context.Context, vin string) (models.VehicleRecord, error) {
	vin = strings.TrimSpace(vin)
	if vin == "" {
		return models.VehicleRecord{}, &DecodeError{Kind: KindInput, Err: fmt.Errorf("vin is empty")}
	}

	endpoint := fmt.Sprintf("%s/decodevinvalues/%s?format=json", c.baseURL, url.PathEscape(vin))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.VehicleRecord{}, &DecodeError{VIN: vin, Kind: KindTransport, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "vinreport/1.0")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return models.VehicleRecord{}, &DecodeError{VIN: vin, Kind: KindTransport, Err: fmt.Errorf("fetch: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.VehicleRecord{}, &DecodeError{VIN: vin, Kind: KindTransport, Err: fmt.Errorf("read body: %w", err)}
	}

	c.log.Debug("decode response",
		zap.String("vin", vin),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.VehicleRecord{}, &DecodeError{
			VIN:        vin,
			Kind:       KindStatus,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode service returned HTTP %d", resp.StatusCode),
		}
	}

	var out decodeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return models.VehicleRecord{}, &DecodeError{VIN: vin, Kind: KindMalformed, Err: fmt.Errorf("unmarshal: %w", err)}
	}
	if len(out.Results) == 0 {
		return models.VehicleRecord{}, &DecodeError{VIN: vin, Kind: KindEmpty, Err: fmt.Errorf("no results for %s", vin)}
	}

	return models.NewVehicleRecord(vin, flatten(out.Results[0])), nil
}

// flatten stringifies a result row. vPIC sends strings, but nulls and the
// occasional number show up in some fields.
func flatten(row map[string]any) map[string]string {
	attrs := make(map[string]string, len(row))
	for k, v := range row {
		switch tv := v.(type) {
		case nil:
		case string:
			attrs[k] = tv
		case float64:
			attrs[k] = strconv.FormatFloat(tv, 'f', -1, 64)
		case bool:
			attrs[k] = strconv.FormatBool(tv)
		default:
			attrs[k] = fmt.Sprint(tv)
		}
	}
	return attrs
}
