package iconcache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPSource fetches icon bytes over HTTP. Provider icon references are CDN
// URLs, so this is the Source production wiring uses.
func HTTPSource(timeout time.Duration) Source {
	client := &http.Client{Timeout: timeout}

	return func(ctx context.Context, ref string) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build icon request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch icon: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("icon fetch returned status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
}
