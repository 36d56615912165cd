package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/i474232898/spotter-data-pull/internal/logging"
	"github.com/i474232898/spotter-data-pull/internal/wave"
)

const (
	DefaultBaseURL = "https://api.sofarocean.com"

	devicesPath  = "/api/devices"
	waveDataPath = "/api/wave-data"
	tokenHeader  = "token"

	// waveDataLimit caps the number of results per wave-data request.
	waveDataLimit = 500
)

// waveDataFlags are the sub-series requested on every wave-data call.
var waveDataFlags = []string{
	"includeWindData",
	"includeSurfaceTempData",
	"includeTrack",
	"includeFrequencyData",
	"includeDirectionalMoments",
	"includePartitionData",
	"includeBarometerData",
}

// SofarConfig configures a SofarClient.
type SofarConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Backoff BackoffConfig
	// BreakerThreshold trips the circuit after this many consecutive
	// failures. Zero disables the breaker.
	BreakerThreshold int
}

// SofarClient implements the wave.Client interface for the Sofar Spotter API.
type SofarClient struct {
	baseURL string
	token   string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

func NewSofarClient(cfg SofarConfig, log zerolog.Logger) *SofarClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	rc := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetLogger(logging.RestyLogger{Log: log})
	if cfg.Timeout > 0 {
		rc.SetTimeout(cfg.Timeout)
	}

	var cb *gobreaker.CircuitBreaker
	if cfg.BreakerThreshold > 0 {
		threshold := uint32(cfg.BreakerThreshold)
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "sofar",
			MaxRequests: 1,
			Timeout:     2 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		})
	}

	return &SofarClient{
		baseURL: baseURL,
		token:   cfg.Token,
		httpCfg: HTTPClientConfig{
			Client:  rc,
			Backoff: cfg.Backoff,
		},
		circuit: cb,
		log:     log,
	}
}

// Send issues one authenticated request. Failures are logged with sensitive
// options redacted and returned wrapped in ErrRequestFailed.
func (c *SofarClient) Send(ctx context.Context, method, path string, opts RequestOptions) (*resty.Response, error) {
	m := strings.ToUpper(method)
	if !validMethod(m) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}

	headers := make(map[string]string, len(opts.Headers)+1)
	for k, v := range opts.Headers {
		headers[k] = v
	}
	headers[tokenHeader] = c.token
	opts.Headers = headers

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, m, path, opts)
	if err != nil {
		c.log.Error().
			Err(err).
			Str("method", m).
			Str("url", c.baseURL+path).
			Interface("headers", logging.Redact(opts.Headers)).
			Interface("query", logging.Redact(flatten(opts.Query))).
			Msg("request failed")
		return nil, fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, m, path, err)
	}
	return resp, nil
}

// ListDevices returns the spotter IDs of the fleet in API order.
func (c *SofarClient) ListDevices(ctx context.Context) ([]wave.Device, error) {
	resp, err := c.Send(ctx, http.MethodGet, devicesPath, RequestOptions{})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Data struct {
			Devices *[]struct {
				SpotterID string `json:"spotterId"`
			} `json:"devices"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("%w: device list: %v", wave.ErrMalformedPayload, err)
	}
	// An error object or a body without data.devices is not an empty fleet.
	if payload.Data.Devices == nil {
		return nil, fmt.Errorf("%w: device list: missing data.devices", wave.ErrMalformedPayload)
	}

	devices := make([]wave.Device, 0, len(*payload.Data.Devices))
	for _, d := range *payload.Data.Devices {
		devices = append(devices, wave.Device(d.SpotterID))
	}
	return devices, nil
}

// FetchWaveData returns the raw wave-data document for one device and window.
func (c *SofarClient) FetchWaveData(ctx context.Context, device wave.Device, window wave.Window) (json.RawMessage, error) {
	resp, err := c.Send(ctx, http.MethodGet, waveDataPath, RequestOptions{
		Query: waveDataQuery(device, window),
	})
	if err != nil {
		return nil, err
	}

	body := resp.Body()
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: wave data for %s", wave.ErrMalformedPayload, device)
	}
	return json.RawMessage(body), nil
}

func waveDataQuery(device wave.Device, window wave.Window) url.Values {
	values := url.Values{}
	values.Set("spotterId", string(device))
	for _, flag := range waveDataFlags {
		values.Set(flag, "true")
	}
	values.Set("limit", strconv.Itoa(waveDataLimit))
	values.Set("startDate", window.StartParam())
	values.Set("endDate", window.EndParam())
	return values
}

var _ wave.Client = (*SofarClient)(nil)
