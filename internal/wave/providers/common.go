package providers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/i474232898/spotter-data-pull/internal/wave"
)

// BackoffConfig controls the optional bounded retry policy.
// MaxRetries of zero means exactly one attempt per request.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles the HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *resty.Client
	Backoff BackoffConfig
}

// RequestOptions are the per-call parameters of Send.
type RequestOptions struct {
	Headers map[string]string
	Query   url.Values
	Body    any
}

// HTTPError is returned for responses with a status code of 400 or above.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error %d (%s) from %s", e.StatusCode, e.Status, e.URL)
}

var (
	// ErrUnsupportedMethod is returned for methods other than GET and POST.
	ErrUnsupportedMethod = fmt.Errorf("%w: unsupported request method", wave.ErrMisuse)

	// ErrRequestFailed wraps every transport or status failure returned by Send.
	ErrRequestFailed = errors.New("request failed")

	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

func validMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodPost
}

// doRequestWithResilience executes one request under the configured retry
// policy and, when cb is non-nil, a circuit breaker.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	method, path string,
	opts RequestOptions,
) (*resty.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || (cfg.Backoff.MaxRetries > 0 && cfg.Backoff.InitialInterval <= 0) {
		return nil, errInvalidConfig
	}

	execute := func() (interface{}, error) {
		req := cfg.Client.R().SetContext(ctx)
		if len(opts.Headers) > 0 {
			req.SetHeaders(opts.Headers)
		}
		if len(opts.Query) > 0 {
			req.SetQueryParamsFromValues(opts.Query)
		}
		if opts.Body != nil {
			req.SetBody(opts.Body)
		}

		resp, err := req.Execute(method, path)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= http.StatusBadRequest {
			return nil, &HTTPError{
				StatusCode: resp.StatusCode(),
				Status:     resp.Status(),
				URL:        resp.Request.URL,
			}
		}
		return resp, nil
	}

	var attempt int
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var (
			result interface{}
			err    error
		)
		if cb != nil {
			result, err = cb.Execute(execute)
		} else {
			result, err = execute()
		}

		if err == nil {
			resp, ok := result.(*resty.Response)
			if !ok {
				return nil, fmt.Errorf("unexpected result type %T", result)
			}
			return resp, nil
		}

		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		if attempt >= cfg.Backoff.MaxRetries || !retryable(ctx, err) {
			return nil, err
		}

		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.Backoff.MaxInterval && cfg.Backoff.MaxInterval > 0 {
			delay = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		attempt++
	}
}

// retryable reports whether a failed attempt may be repeated: transport
// faults, 429 and 5xx only.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

func flatten(v url.Values) map[string]string {
	if len(v) == 0 {
		return nil
	}
	out := make(map[string]string, len(v))
	for k := range v {
		out[k] = v.Get(k)
	}
	return out
}
