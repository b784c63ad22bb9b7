package suppression

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/observability"
	"go.uber.org/zap"
)

const DefaultTimeout = 10 * time.Second

type listResponse struct {
	Unsubscribed []string `json:"unsubscribed"`
}

// Client fetches the external opt-out list.
type Client struct {
	client   *resty.Client
	endpoint string
	logger   *zap.Logger
}

func NewClient(endpoint string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	client := resty.New()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return NewClientWithResty(endpoint, client, logger)
}

func NewClientWithResty(endpoint string, client *resty.Client, logger *zap.Logger) (*Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("suppression endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid suppression endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(DefaultTimeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		client:   client,
		endpoint: trimmed,
		logger:   logger,
	}, nil
}

// List returns the raw addresses published by the endpoint.
func (c *Client) List(ctx context.Context) ([]string, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch suppression list: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("suppression endpoint returned status %d", resp.StatusCode())
	}

	var body listResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("failed to decode suppression list: %w", err)
	}
	return body.Unsubscribed, nil
}

// Fetch never fails: any error is logged and yields an empty set.
func (c *Client) Fetch(ctx context.Context) domain.Suppressions {
	logger := observability.WithContextLogger(c.logger, ctx)

	entries, err := c.List(ctx)
	if err != nil {
		logger.Warn("suppression fetch failed, continuing with empty set", zap.Error(err))
		return domain.NewSuppressions(nil)
	}

	set := domain.NewSuppressions(entries)
	logger.Info("suppression list fetched", zap.Int("entries", len(entries)), zap.Int("addresses", set.Len()))
	return set
}
