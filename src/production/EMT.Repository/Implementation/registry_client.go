package implementation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	emtmodels "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Models"
)

// RegistryClient fetches the active chip id list from the external device
// registry API.
type RegistryClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewRegistryClient(baseURL string, timeout time.Duration) *RegistryClient {
	return &RegistryClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *RegistryClient) ListActiveChipIds(ctx context.Context) ([]string, error) {
	url := c.baseURL + "/api/device/getChipIds"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build registry request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch chip ids: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry returned status %d", resp.StatusCode)
	}

	var devices []emtmodels.RegistryDevice
	if err := json.NewDecoder(resp.Body).Decode(&devices); err != nil {
		return nil, fmt.Errorf("decode registry response: %w", err)
	}

	chipIds := make([]string, 0, len(devices))
	for _, d := range devices {
		if d.ChipId != "" {
			chipIds = append(chipIds, d.ChipId)
		}
	}
	return chipIds, nil
}
