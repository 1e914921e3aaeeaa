// Package notify delivers WhatsApp template messages to client contacts.
// Delivery is best-effort: the sender retries a fixed number of times with
// linear backoff and reports success as a bool, never as an error. Callers
// must not block a workflow transition on the result.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/voltlink-io/onboardflow/internal/config"
)

const (
	maxAttempts = 3
	backoffStep = 2 * time.Second
	sendTimeout = 10 * time.Second
)

// templateMessage is the gateway's message envelope
type templateMessage struct {
	To       string            `json:"to"`
	From     string            `json:"from,omitempty"`
	Template string            `json:"template"`
	Params   map[string]string `json:"params,omitempty"`
}

// WhatsAppSender sends template messages through the configured gateway
type WhatsAppSender struct {
	cfg    config.WhatsAppConfig
	client *http.Client
}

// NewWhatsAppSender creates a sender over the gateway configuration
func NewWhatsAppSender(cfg config.WhatsAppConfig) *WhatsAppSender {
	return &WhatsAppSender{
		cfg:    cfg,
		client: &http.Client{Timeout: sendTimeout},
	}
}

// Notify sends one template message. Returns false (never an error) when
// the gateway is unconfigured or all attempts fail.
func (s *WhatsAppSender) Notify(kind string, phoneNumber string, args map[string]string) bool {
	if s.cfg.APIURL == "" {
		log.Printf("⚠️ WhatsApp gateway not configured, dropping %s notification", kind)
		return false
	}

	body, err := json.Marshal(templateMessage{
		To:       phoneNumber,
		From:     s.cfg.SenderPhone,
		Template: kind,
		Params:   args,
	})
	if err != nil {
		log.Printf("⚠️ Failed to encode %s notification: %v", kind, err)
		return false
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := s.send(body); err == nil {
			return true
		} else if attempt < maxAttempts {
			log.Printf("⚠️ WhatsApp send attempt %d/%d failed: %v", attempt, maxAttempts, err)
			time.Sleep(time.Duration(attempt) * backoffStep)
		} else {
			log.Printf("⚠️ WhatsApp %s notification to %s failed after %d attempts: %v", kind, phoneNumber, maxAttempts, err)
		}
	}
	return false
}

func (s *WhatsAppSender) send(body []byte) error {
	req, err := http.NewRequest(http.MethodPost, s.cfg.APIURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return nil
}
