package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/booking-assistant/internal/textnorm"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

var tracer = otel.Tracer("booking.internal.messaging")

const defaultUserAgent = "booking-assistant/0.1"

// EvolutionConfig controls the outbound client.
type EvolutionConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// EvolutionClient sends WhatsApp messages through an Evolution API gateway.
type EvolutionClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *logging.Logger
}

// APIError is a non-2xx gateway response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("messaging: evolution status %d: %s", e.Status, e.Body)
}

func NewEvolutionClient(cfg EvolutionConfig) (*EvolutionClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("messaging: evolution base url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("messaging: evolution api key is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &EvolutionClient{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
	}, nil
}

// SendText posts a text message to the number "to" through instance.
func (c *EvolutionClient) SendText(ctx context.Context, instance, to, body string) error {
	ctx, span := tracer.Start(ctx, "messaging.evolution.send_text")
	defer span.End()
	span.SetAttributes(attribute.String("messaging.instance", instance))

	number := textnorm.Digits(to)
	if strings.TrimSpace(instance) == "" || number == "" {
		return errors.New("messaging: instance and recipient are required")
	}
	if strings.TrimSpace(body) == "" {
		return errors.New("messaging: empty message body")
	}
	payload, err := json.Marshal(struct {
		Number string `json:"number"`
		Text   string `json:"text"`
	}{Number: number, Text: body})
	if err != nil {
		return fmt.Errorf("messaging: marshal send body: %w", err)
	}
	if err := c.invoke(ctx, "/message/sendText/"+url.PathEscape(instance), payload); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (c *EvolutionClient) invoke(ctx context.Context, path string, body []byte) error {
	fullURL := c.baseURL + path
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("messaging: build request: %w", err)
		}
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", defaultUserAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("messaging: http error: %w", err)
		} else {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			lastErr = &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
			if !retryable(resp.StatusCode) {
				return lastErr
			}
		}
		if attempt == c.maxRetries {
			break
		}
		c.logger.Warn("retrying evolution request", "path", path, "attempt", attempt+1, "error", lastErr)
		if err := c.sleep(ctx, attempt); err != nil {
			return err
		}
	}
	return lastErr
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func (c *EvolutionClient) sleep(ctx context.Context, attempt int) error {
	delay := c.backoff * time.Duration(1<<attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
