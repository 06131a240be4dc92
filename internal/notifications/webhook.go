package notifications

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

const defaultWebhookTimeout = 30 * time.Second

func (w *Webhook) Notify(ctx context.Context, change ConnectivityChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}

	timeout := w.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	client := http.Client{
		Timeout: timeout,
	}
	if w.Insecure {
		client.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	if w.Username != "" || w.Password != "" {
		req.SetBasicAuth(w.Username, w.Password)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification via webhook: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("failed to send notification via webhook: %d", resp.StatusCode)
	}

	return nil
}
