package connectivity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultProbeTimeout keeps the liveness check well below the probe interval.
const DefaultProbeTimeout = 5 * time.Second

// HTTPProber checks a liveness endpoint that carries no semantic payload.
type HTTPProber struct {
	Client  *http.Client
	URL     string
	Timeout time.Duration
}

// Probe issues GET URL. Any 2xx answer means the API is reachable.
func (p *HTTPProber) Probe(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fmt.Errorf("invalid liveness url '%s': %w", p.URL, err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("liveness probe failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("liveness probe returned %d", resp.StatusCode)
	}
	return nil
}
