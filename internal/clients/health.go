package clients

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"
)

const defaultProbeTimeout = 2 * time.Second

// HealthProbe is one upstream dependency reported by the readiness endpoint.
type HealthProbe struct {
	Name    string
	Client  *Client
	Path    string
	Timeout time.Duration
}

type HealthResult struct {
	Name       string `json:"name"`
	OK         bool   `json:"ok"`
	StatusCode int    `json:"statusCode,omitempty"`
	LatencyMS  int64  `json:"latencyMs"`
	Error      string `json:"error,omitempty"`
}

// Check issues a GET against the probe path. Any 2xx counts as healthy; the
// body is discarded so the connection can be reused.
func (p HealthProbe) Check(ctx context.Context) HealthResult {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := HealthResult{Name: p.Name}
	start := time.Now()
	resp, err := p.Client.Do(ctx, http.MethodGet, p.Path, "", nil, nil)
	res.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		res.Error = transportError(ctx, "health", err).Error()
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	res.StatusCode = resp.StatusCode
	res.OK = resp.StatusCode/100 == 2
	return res
}

// CheckAll probes every upstream concurrently, keeping the probe order.
func CheckAll(ctx context.Context, probes []HealthProbe) []HealthResult {
	results := make([]HealthResult, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = p.Check(ctx)
		}()
	}
	wg.Wait()
	return results
}
