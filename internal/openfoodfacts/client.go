// Package openfoodfacts looks products up in the Open Food Facts database.
package openfoodfacts

import (
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"nutriscan/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultBaseURL   = "https://world.openfoodfacts.org/api/v2/product/"
	DefaultLanguage  = "fr"
	DefaultUserAgent = "nutriscan/1.0 (+https://github.com/nutriscan)"
	DefaultTimeout   = 10 * time.Second

	// DefaultRatePerMinute matches the public product read limit
	DefaultRatePerMinute = 100

	// DefaultMaxBodyBytes caps a decoded response body
	DefaultMaxBodyBytes = 4 << 20

	maxBackoff = 10 * time.Second
)

// Options configures a Client. Zero values pick the defaults.
type Options struct {
	BaseURL       string
	Language      string
	UserAgent     string
	Timeout       time.Duration
	RatePerMinute int
	MaxRetries    int
	MaxBodyBytes  int64
	HTTPClient    *http.Client
	Logger        *zap.Logger
}

// Client is an HTTP client for the product API
type Client struct {
	httpClient *http.Client
	baseURL    string
	language   string
	userAgent  string
	maxRetries int
	maxBody    int64
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a new product API client
func NewClient(opts Options) *Client {
	c := &Client{
		httpClient: opts.HTTPClient,
		baseURL:    opts.BaseURL,
		language:   opts.Language,
		userAgent:  opts.UserAgent,
		maxRetries: opts.MaxRetries,
		maxBody:    opts.MaxBodyBytes,
		logger:     opts.Logger,
	}
	if c.maxBody <= 0 {
		c.maxBody = DefaultMaxBodyBytes
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(c.baseURL, "/") {
		c.baseURL += "/"
	}
	if c.language == "" {
		c.language = DefaultLanguage
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	perMinute := opts.RatePerMinute
	if perMinute <= 0 {
		perMinute = DefaultRatePerMinute
	}
	c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	return c
}

// envelope is the API response wrapper
type envelope struct {
	Status        int                   `json:"status"`
	StatusVerbose string                `json:"status_verbose"`
	Product       *model.ProductPayload `json:"product"`
}

// FetchByBarcode looks up barcode. Failures are *model.NetworkError,
// *model.NotFoundError or *model.MalformedDataError.
func (c *Client) FetchByBarcode(ctx context.Context, barcode string) (*model.ProductPayload, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			select {
			case <-ctx.Done():
				return nil, &model.NetworkError{Barcode: barcode, Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}

		payload, err := c.fetch(ctx, barcode)
		if err == nil {
			return payload, nil
		}
		lastErr = err

		// Only transport failures and 5xx are worth another attempt
		var netErr *model.NetworkError
		if !errors.As(err, &netErr) || (netErr.StatusCode != 0 && netErr.StatusCode < 500) {
			break
		}
		c.logger.Debug("lookup attempt failed", zap.String("barcode", barcode), zap.Int("attempt", attempt), zap.Error(err))
	}

	return nil, lastErr
}

func (c *Client) fetch(ctx context.Context, barcode string) (*model.ProductPayload, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &model.NetworkError{Barcode: barcode, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.productURL(barcode), nil)
	if err != nil {
		return nil, &model.NetworkError{Barcode: barcode, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Accept-Language", c.language)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &model.NetworkError{Barcode: barcode, Err: fmt.Errorf("failed to fetch product: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &model.NotFoundError{Barcode: barcode}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &model.NetworkError{Barcode: barcode, StatusCode: resp.StatusCode}
	}

	var reader io.Reader = resp.Body

	// Handle gzip decompression
	if strings.Contains(resp.Header.Get("Content-Encoding"), "gzip") {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, &model.NetworkError{Barcode: barcode, Err: fmt.Errorf("failed to create gzip reader: %w", err)}
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	body, err := io.ReadAll(io.LimitReader(reader, c.maxBody+1))
	if err != nil {
		return nil, &model.NetworkError{Barcode: barcode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	if int64(len(body)) > c.maxBody {
		return nil, &model.MalformedDataError{
			Source: "product " + barcode,
			Err:    fmt.Errorf("response body exceeds %d bytes", c.maxBody),
		}
	}

	return decode(barcode, body)
}

func (c *Client) productURL(barcode string) string {
	q := url.Values{}
	q.Set("lc", c.language)
	return c.baseURL + url.PathEscape(barcode) + ".json?" + q.Encode()
}

func decode(barcode string, body []byte) (*model.ProductPayload, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &model.MalformedDataError{Source: "product " + barcode, Err: err}
	}
	if env.Status != 1 || env.Product == nil {
		return nil, &model.NotFoundError{Barcode: barcode}
	}
	p := env.Product
	if p.Nutriments == nil {
		return nil, &model.MalformedDataError{Source: "product " + barcode, Err: errors.New("missing nutriments")}
	}
	if p.Code == "" {
		p.Code = barcode
	}
	return p, nil
}
