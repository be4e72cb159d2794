package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/smallparish/offertory/internal/gateway/domain"
	webhookdomain "github.com/smallparish/offertory/internal/webhook/domain"
	"go.uber.org/zap"
)

// Client talks to the payment gateway's read API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		log:     log.Named("gateway.client"),
	}
}

func (c *Client) RetrieveSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, webhookdomain.ErrSubscriptionNotFound
	}
	if c.baseURL == "" {
		return nil, webhookdomain.ErrGatewayUnavailable
	}

	url := fmt.Sprintf("%s/v1/subscriptions/%s", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("gateway subscription fetch failed", zap.String("subscription_id", id), zap.Error(err))
		return nil, webhookdomain.ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, webhookdomain.ErrSubscriptionNotFound
	case resp.StatusCode != http.StatusOK:
		c.log.Warn("gateway subscription fetch returned error",
			zap.String("subscription_id", id),
			zap.Int("status", resp.StatusCode),
		)
		return nil, webhookdomain.ErrGatewayUnavailable
	}

	var sub domain.Subscription
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, webhookdomain.ErrGatewayUnavailable
	}
	if strings.TrimSpace(sub.ID) == "" {
		sub.ID = id
	}
	return &sub, nil
}
