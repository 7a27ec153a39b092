package dbgclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxInFlight = 30
	defaultMaxRetries  = 2
	defaultBaseBackoff = 100 * time.Millisecond
	maxResponseSize    = 64 << 20
)

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	// BaseURL is the scheme and host of the service, e.g. http://localhost:9300.
	BaseURL string

	// Timeout bounds a single HTTP exchange. Zero means 30s.
	Timeout time.Duration

	// MaxInFlight caps outstanding requests. Zero means 30.
	MaxInFlight int64

	// RateLimit is the sustained request rate per second. Zero disables
	// rate limiting.
	RateLimit float64

	// Burst is the limiter burst size when RateLimit is set.
	Burst int

	// MaxRetries is the number of extra attempts for transport failures.
	// Negative disables retries.
	MaxRetries int
}

// HTTPClient implements Client over the /jsdbg-server protocol.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	inFlight   *semaphore.Weighted
	maxRetries int
	logger     *zap.Logger
	metrics    *RequestMetrics
	tracer     trace.Tracer
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the service at cfg.BaseURL.
func NewHTTPClient(cfg HTTPConfig, logger *zap.Logger) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	} else if maxRetries < 0 {
		maxRetries = 0
	}

	c := &HTTPClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		inFlight:   semaphore.NewWeighted(maxInFlight),
		maxRetries: maxRetries,
		logger:     logger.Named("dbgclient"),
		metrics:    NewRequestMetrics(logger),
		tracer:     otel.Tracer(instrumentationName),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c, nil
}

// PointerSize implements Client.
func (c *HTTPClient) PointerSize(ctx context.Context) (int, error) {
	var resp PointerSizeResponse
	if err := c.get(ctx, OpPointerSize, nil, &resp); err != nil {
		return 0, err
	}
	return resp.PointerSize, nil
}

// TypeSize implements Client.
func (c *HTTPClient) TypeSize(ctx context.Context, module, typ string) (int64, error) {
	var resp SizeResponse
	err := c.get(ctx, OpTypeSize, url.Values{"module": {module}, "type": {typ}}, &resp)
	return resp.Size, err
}

// FieldOffset implements Client.
func (c *HTTPClient) FieldOffset(ctx context.Context, module, typ, field string) (FieldInfo, error) {
	var resp FieldInfo
	err := c.get(ctx, OpFieldOffset, url.Values{"module": {module}, "type": {typ}, "field": {field}}, &resp)
	return resp, err
}

// TypeFields implements Client.
func (c *HTTPClient) TypeFields(ctx context.Context, module, typ string, includeBaseTypes bool) ([]TypeField, error) {
	var resp FieldsResponse
	params := url.Values{
		"module":           {module},
		"type":             {typ},
		"includeBaseTypes": {strconv.FormatBool(includeBaseTypes)},
	}
	if err := c.get(ctx, OpTypeFields, params, &resp); err != nil {
		return nil, err
	}
	return resp.Fields, nil
}

// BaseTypes implements Client.
func (c *HTTPClient) BaseTypes(ctx context.Context, module, typ string) ([]BaseType, error) {
	var resp BaseTypesResponse
	if err := c.get(ctx, OpBaseTypes, url.Values{"module": {module}, "type": {typ}}, &resp); err != nil {
		return nil, err
	}
	return resp.BaseTypes, nil
}

// IsEnum implements Client.
func (c *HTTPClient) IsEnum(ctx context.Context, module, typ string) (bool, error) {
	var resp IsEnumResponse
	err := c.get(ctx, OpIsEnum, url.Values{"module": {module}, "type": {typ}}, &resp)
	return resp.IsEnum, err
}

// ConstantName implements Client.
func (c *HTTPClient) ConstantName(ctx context.Context, module, typ string, value uint64) ([]string, error) {
	var resp NamesResponse
	params := url.Values{
		"module":   {module},
		"type":     {typ},
		"constant": {strconv.FormatUint(value, 10)},
	}
	if err := c.get(ctx, OpConstantName, params, &resp); err != nil {
		return nil, err
	}
	return resp.Names, nil
}

// ConstantValue implements Client.
func (c *HTTPClient) ConstantValue(ctx context.Context, module, typ, name string) (uint64, error) {
	var resp ValueResponse
	err := c.get(ctx, OpConstantValue, url.Values{"module": {module}, "type": {typ}, "name": {name}}, &resp)
	return resp.Value, err
}

// SymbolName implements Client.
func (c *HTTPClient) SymbolName(ctx context.Context, addr uint64) (SymbolInfo, error) {
	var resp SymbolInfo
	err := c.get(ctx, OpSymbolName, url.Values{"pointer": {strconv.FormatUint(addr, 10)}}, &resp)
	return resp, err
}

// GlobalSymbol implements Client.
func (c *HTTPClient) GlobalSymbol(ctx context.Context, module, symbol string) (GlobalInfo, error) {
	var resp GlobalInfo
	err := c.get(ctx, OpGlobalSymbol, url.Values{"module": {module}, "symbol": {symbol}}, &resp)
	return resp, err
}

// ReadNumber implements Client.
func (c *HTTPClient) ReadNumber(ctx context.Context, addr uint64, width int) (uint64, error) {
	if err := ValidateRead(OpReadNumber, width, 1); err != nil {
		return 0, err
	}
	name, _ := WidthName(width)
	var resp ValueResponse
	err := c.get(ctx, OpReadNumber, url.Values{"type": {name}, "pointer": {strconv.FormatUint(addr, 10)}}, &resp)
	return resp.Value, err
}

// ReadArray implements Client.
func (c *HTTPClient) ReadArray(ctx context.Context, addr uint64, width int, count int) ([]uint64, error) {
	if err := ValidateRead(OpReadArray, width, count); err != nil {
		return nil, err
	}
	if count == 0 {
		return []uint64{}, nil
	}
	name, _ := WidthName(width)
	params := url.Values{
		"type":    {name},
		"pointer": {strconv.FormatUint(addr, 10)},
		"length":  {strconv.Itoa(count)},
	}
	var resp ArrayResponse
	if err := c.get(ctx, OpReadArray, params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Array) != count {
		return nil, Errorf(OpReadArray, "expected %d values, got %d", count, len(resp.Array))
	}
	return resp.Array, nil
}

// get performs one protocol request, decoding the result into out.
func (c *HTTPClient) get(ctx context.Context, op string, params url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &RemoteError{Op: op, Payload: "rate limiter", Err: errors.Join(ErrTransport, err)}
		}
	}
	if err := c.inFlight.Acquire(ctx, 1); err != nil {
		return &RemoteError{Op: op, Payload: "waiting for request slot", Err: errors.Join(ErrTransport, err)}
	}
	defer c.inFlight.Release(1)

	ctx, span := c.tracer.Start(ctx, "dbgclient."+op, trace.WithAttributes(
		attribute.String("dbgnav.op", op),
	))
	defer span.End()

	start := time.Now()
	c.metrics.begin(ctx)
	err := c.doWithRetry(ctx, op, params, out)
	c.metrics.end(ctx, op, start, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debug("remote request failed", zap.String("op", op), zap.Error(err))
	}
	return err
}

func (c *HTTPClient) doWithRetry(ctx context.Context, op string, params url.Values, out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return &RemoteError{Op: op, Payload: "cancelled", Err: errors.Join(ErrTransport, ctx.Err())}
			case <-time.After(backoff):
			}
			c.logger.Debug("retrying remote request", zap.String("op", op), zap.Int("attempt", attempt))
		}

		err := c.do(ctx, op, params, out)
		if err == nil {
			return nil
		}
		lastErr = err

		var retry *retryableError
		if !errors.As(err, &retry) {
			return err
		}
	}

	var retry *retryableError
	if errors.As(lastErr, &retry) {
		return retry.err
	}
	return lastErr
}

func (c *HTTPClient) do(ctx context.Context, op string, params url.Values, out any) error {
	u := c.baseURL + PathPrefix + op
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &RemoteError{Op: op, Payload: "building request", Err: errors.Join(ErrTransport, err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: &RemoteError{Op: op, Payload: "request failed", Err: errors.Join(ErrTransport, err)}}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &retryableError{err: &RemoteError{Op: op, Payload: "reading response", Err: errors.Join(ErrTransport, err)}}
	}

	if resp.StatusCode != http.StatusOK {
		rerr := &RemoteError{
			Op:      op,
			Payload: fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			Err:     ErrTransport,
		}
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return &retryableError{err: rerr}
		}
		return rerr
	}

	return decodeResponse(op, body, out)
}

// decodeResponse turns an error payload into a RemoteError and anything else
// into out.
func decodeResponse(op string, body []byte, out any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var probe struct {
			Error *string `json:"error"`
		}
		if err := json.Unmarshal(trimmed, &probe); err == nil && probe.Error != nil {
			return &RemoteError{Op: op, Payload: *probe.Error}
		}
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return &RemoteError{Op: op, Payload: "malformed response", Err: errors.Join(ErrTransport, err)}
	}
	return nil
}

// retryableError marks a failure worth another attempt.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}
