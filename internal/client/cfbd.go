package client

import (
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

	"cfbplayoff/ingestion/internal/metrics"
	"cfbplayoff/ingestion/internal/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrMissingAPIKey is returned by NewClient when no bearer token is configured
var ErrMissingAPIKey = errors.New("collegefootballdata API key is required")

// APIError is a non-2xx response from the API
type APIError struct {
	Endpoint   string
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API request to %s failed: %s", e.Endpoint, e.Status)
}

// Retryable reports whether the request may succeed if repeated
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Options configures the client. Zero values for the resilience settings
// mean a single attempt, no breaker and no rate limit.
type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration

	BreakerFailures int
	BreakerTimeout  time.Duration

	RateLimit float64
	Burst     int

	HTTPClient *http.Client
}

// Client is the CollegeFootballData API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	opts       Options
}

// NewClient creates a new CollegeFootballData API client.
// It fails before any network activity when the API key is empty.
func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 10 * time.Second
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		httpClient: httpClient,
		opts:       opts,
	}

	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	if opts.BreakerFailures > 0 {
		threshold := uint32(opts.BreakerFailures)
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "cfbd",
			Timeout: opts.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			// Client errors say nothing about upstream health
			IsSuccessful: func(err error) bool {
				return err == nil || !isRetryable(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Circuit breaker state changed")
				metrics.SetBreakerState(int(to))
			},
		})
	}

	return c, nil
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// get performs a GET request with rate limiting, bounded exponential backoff
// and the circuit breaker
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/%s", c.baseURL, path)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.opts.InitialInterval
	policy.MaxInterval = c.opts.MaxInterval
	policy.MaxElapsedTime = 0

	attempt := 0
	operation := func() ([]byte, error) {
		attempt++
		body, err := c.execute(ctx, path, endpoint)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || !isRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	notify := func(err error, wait time.Duration) {
		log.Warn().
			Err(err).
			Str("path", path).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying API request after backoff")
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.opts.MaxAttempts-1)), ctx)
	return backoff.RetryNotifyWithData(operation, b, notify)
}

func (c *Client) execute(ctx context.Context, path, endpoint string) ([]byte, error) {
	if c.breaker == nil {
		return c.do(ctx, path, endpoint)
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, path, endpoint)
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func (c *Client) do(ctx context.Context, path, endpoint string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "cfb-playoff-ingestion/1.0")

	log.Debug().
		Str("url", endpoint).
		Msg("Making API request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordAPICall(path, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.RecordAPICall(path, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			Endpoint:   path,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	log.Debug().
		Str("url", endpoint).
		Int("status", resp.StatusCode).
		Int("size", len(body)).
		Msg("API request successful")

	return body, nil
}

// FetchFBSTeams fetches all FBS teams for a season
func (c *Client) FetchFBSTeams(ctx context.Context, season int) ([]models.TeamInput, error) {
	params := url.Values{}
	params.Set("year", strconv.Itoa(season))

	body, err := c.get(ctx, "teams/fbs", params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch teams: %w", err)
	}

	var teams []models.TeamInput
	if err := json.Unmarshal(body, &teams); err != nil {
		return nil, fmt.Errorf("failed to unmarshal teams: %w", err)
	}

	return teams, nil
}

// FetchGames fetches FBS games for a season, or for one week when week is set
func (c *Client) FetchGames(ctx context.Context, season int, week *int) ([]models.GameInput, error) {
	params := url.Values{}
	params.Set("year", strconv.Itoa(season))
	params.Set("division", models.DivisionFBS)
	if week != nil {
		params.Set("week", strconv.Itoa(*week))
	}

	body, err := c.get(ctx, "games", params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch games: %w", err)
	}

	var games []models.GameInput
	if err := json.Unmarshal(body, &games); err != nil {
		return nil, fmt.Errorf("failed to unmarshal games: %w", err)
	}

	return games, nil
}

// FetchConferences fetches the conference directory
func (c *Client) FetchConferences(ctx context.Context) ([]models.ConferenceInput, error) {
	body, err := c.get(ctx, "conferences", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conferences: %w", err)
	}

	var conferences []models.ConferenceInput
	if err := json.Unmarshal(body, &conferences); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conferences: %w", err)
	}

	return conferences, nil
}
