// Package lorawan pushes provisioning webhooks to the network-server
// collaborator. The engine fires these without awaiting the result; a
// failure here never blocks a status transition.
package lorawan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/voltlink-io/onboardflow/internal/config"
)

// WebhookClient posts task provisioning requests to the network server
type WebhookClient struct {
	cfg    config.LorawanConfig
	client *http.Client
}

// NewWebhookClient creates a client over the webhook configuration
func NewWebhookClient(cfg config.LorawanConfig) *WebhookClient {
	return &WebhookClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// SendProvisioningWebhook notifies the network server that a task's
// devices are ready for network provisioning.
func (c *WebhookClient) SendProvisioningWebhook(ctx context.Context, taskID string) error {
	if c.cfg.WebhookURL == "" {
		return fmt.Errorf("LoRaWAN webhook URL not configured")
	}

	body, err := json.Marshal(map[string]string{"taskId": taskID})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("provisioning webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("provisioning webhook returned status %d", resp.StatusCode)
	}
	return nil
}
