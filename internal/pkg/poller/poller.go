// Package poller waits on the photo status endpoint until processing ends.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// DefaultInterval matches the browser script.
const DefaultInterval = 3000 * time.Millisecond

// HeaderProcessing mirrors Status.Processing on every status response.
const HeaderProcessing = "X-Photo-Processing"

// Status is the body of GET /api/v1/photos/:id/status.
type Status struct {
	ID           uint   `json:"id"`
	Processing   bool   `json:"processing"`
	Processed    bool   `json:"processed"`
	Stage        string `json:"stage"`
	CaptionCount int64  `json:"caption_count"`
	StatusURL    string `json:"status_url"`
}

// Poller repeatedly fetches a status URL.
type Poller struct {
	Client   *http.Client
	Interval time.Duration
	// Header is added to every request, e.g. the X-User-ID identity header.
	Header http.Header
}

func New(client *http.Client) *Poller {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Poller{Client: client, Interval: DefaultInterval}
}

// Wait polls url until the photo is no longer processing. Cancelling ctx
// abandons the wait and returns ctx.Err(). Transport errors and non-2xx
// responses are logged and polling continues.
func (p *Poller) Wait(ctx context.Context, url string) (Status, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		st, err := p.fetch(ctx, url)
		switch {
		case err == nil && !st.Processing:
			return st, nil
		case err != nil && ctx.Err() == nil:
			log.Debugf("[Poller] %s: %v", url, err)
		}

		select {
		case <-ctx.Done():
			return Status{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) fetch(ctx context.Context, url string) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Status{}, err
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range p.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Status{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Status{}, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}
	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return Status{}, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}
