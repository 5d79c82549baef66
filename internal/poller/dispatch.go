package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/masa-finance/bot-guardian/api/types"
)

// HTTPDispatcher posts dispatch requests to the deploy daemon.
type HTTPDispatcher struct {
	URL    string
	Token  string
	Client *http.Client
}

func NewHTTPDispatcher(url, token string) *HTTPDispatcher {
	return &HTTPDispatcher{
		URL:    url,
		Token:  token,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, r types.DispatchRequest) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("error marshaling dispatch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.Token)
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending dispatch request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("dispatch returned status code %d", resp.StatusCode)
	}
	return nil
}
