package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"conciliar/internal"
	"conciliar/internal/config"
	"conciliar/internal/util"
)

// Client talks to the corporate B2B directory API that owns the canonical
// client master data (tax id to legal name mapping).
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

type scrollPayload struct {
	Clients  []map[string]any `json:"clients"`
	ScrollID *string          `json:"scrollId"`
	Total    *int             `json:"total"`
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.RegistryTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.RegistryRateRPS, cfg.RegistryRateBurst),
	}
}

func (c *Client) GetClientsScrollAll(ctx context.Context) ([]internal.ClientRecord, error) {
	all := make([]internal.ClientRecord, 0)
	seen := map[string]struct{}{}
	var scrollID string

	for {
		query := map[string]string{}
		if scrollID != "" {
			query["scrollId"] = scrollID
		}

		body, err := c.fetchJSON(ctx, "clients/scroll", query)
		if err != nil {
			return nil, err
		}

		var payload scrollPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, err
		}

		for _, raw := range payload.Clients {
			record, err := toClientRecord(raw)
			if err != nil {
				continue
			}
			all = append(all, record)
		}

		if payload.ScrollID == nil || *payload.ScrollID == "" || len(payload.Clients) == 0 {
			break
		}
		if _, ok := seen[*payload.ScrollID]; ok {
			break
		}
		seen[*payload.ScrollID] = struct{}{}
		scrollID = *payload.ScrollID
	}

	return all, nil
}

func (c *Client) fetchJSON(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	if strings.TrimSpace(c.cfg.RegistryAPIToken) == "" {
		return nil, errors.New("missing REGISTRY_API_TOKEN")
	}

	baseURL := strings.TrimRight(c.cfg.RegistryAPIBaseURL, "/") + "/"
	u, err := url.Parse(baseURL + endpoint)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		c.limiter.WaitTurn()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.RegistryAPIToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < 5 {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				time.Sleep(backoff)
				lastErr = fmt.Errorf("registry status %d", resp.StatusCode)
				continue
			}
			return nil, fmt.Errorf("registry api error: status=%d body=%s", resp.StatusCode, string(body))
		}

		var apiResp apiResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return nil, err
		}
		if !apiResp.Success {
			return nil, fmt.Errorf("registry api unsuccessful: %s", string(apiResp.Errors))
		}
		return apiResp.Data, nil
	}

	if lastErr == nil {
		lastErr = errors.New("registry request failed")
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func toClientRecord(raw map[string]any) (internal.ClientRecord, error) {
	taxID, _ := raw["nit"].(string)
	taxID = strings.TrimSpace(taxID)
	if taxID == "" {
		return internal.ClientRecord{}, errors.New("empty nit")
	}

	name, _ := raw["nombre"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return internal.ClientRecord{}, errors.New("empty nombre")
	}

	rawJSON, _ := json.Marshal(raw)
	record := internal.ClientRecord{
		TaxID:       taxID,
		DisplayName: name,
		Active:      true,
		RawJSON:     string(rawJSON),
	}
	record.City = toStringPtr(raw["ciudad"])
	record.Salesperson = toStringPtr(raw["vendedor"])
	record.UpdatedAt = toStringPtr(raw["fecha_actualizacion"])
	if active, ok := raw["activo"].(bool); ok {
		record.Active = active
	}

	return record, nil
}

func toStringPtr(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return util.StringPtr(s)
}
