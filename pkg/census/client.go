// Package census provides a client for the Census Bureau data API.
package census

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/crosswalk-cli/internal/resilience"
)

// Common datasets.
const (
	DatasetSF1  = "dec/sf1"
	DatasetSF3  = "dec/sf3"
	DatasetACS5 = "acs/acs5"
)

// Query selects variables for one geography clause.
type Query struct {
	Year      int
	Dataset   string
	Variables []string
	For       string
	In        string
}

// Row is one API result keyed by column name.
type Row map[string]string

// Client defines the Census data API operations.
type Client interface {
	// Get runs a single query and returns its rows.
	Get(ctx context.Context, q Query) ([]Row, error)
}

// Option configures the Census client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retry = cfg }
}

// WithRateLimit sets the request rate.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) { c.limiter = rate.NewLimiter(rate.Limit(perSec), 1) }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a Census API client. Transient failures are retried ten
// times two minutes apart unless overridden.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.census.gov/data",
		http:    &http.Client{Timeout: 2 * time.Minute},
		limiter: rate.NewLimiter(rate.Limit(5), 1),
		retry:   resilience.FixedRetryConfig(10, 2*time.Minute),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("census", "get")
	}
	return c
}

func (c *httpClient) Get(ctx context.Context, q Query) ([]Row, error) {
	if len(q.Variables) == 0 {
		return nil, eris.New("census: query has no variables")
	}
	params := url.Values{
		"get": {strings.Join(q.Variables, ",")},
		"for": {q.For},
	}
	if q.In != "" {
		params.Set("in", q.In)
	}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	target := fmt.Sprintf("%d/%s for=%s in=%s", q.Year, q.Dataset, q.For, q.In)
	reqURL := fmt.Sprintf("%s/%d/%s?%s", c.baseURL, q.Year, q.Dataset, params.Encode())

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "census: rate limit")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "census: build request")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "census: request"), 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode == http.StatusNoContent {
			return nil, nil
		}
		if err := resilience.CheckStatus(resp.StatusCode, target); err != nil {
			return nil, err
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "census: read body"), 0)
		}
		return data, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "census: get %s", target)
	}

	rows, err := decodeRows(body)
	if err != nil {
		return nil, eris.Wrapf(err, "census: decode %s", target)
	}
	zap.L().Debug("census: fetched", zap.String("query", target), zap.Int("rows", len(rows)))
	return rows, nil
}

// decodeRows converts the API's array-of-arrays body, whose first row is the
// header, into keyed rows.
func decodeRows(body []byte) ([]Row, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var raw [][]*string
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrap(err, "parse response")
	}
	if len(raw) == 0 {
		return nil, nil
	}
	header := raw[0]
	out := make([]Row, 0, len(raw)-1)
	for _, rec := range raw[1:] {
		row := make(Row, len(header))
		for i, h := range header {
			if h == nil || i >= len(rec) || rec[i] == nil {
				continue
			}
			row[*h] = *rec[i]
		}
		out = append(out, row)
	}
	return out, nil
}
