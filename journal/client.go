package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// httpClient talks to the journal API over JSON. Requests are rate limited so
// a misbehaving refresh loop cannot hammer the server.
type httpClient struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
	limiter   <-chan time.Time
}

// NewHTTPClient builds a Client from JOURNAL_API_* environment settings.
func NewHTTPClient(apiKey string) (Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("JOURNAL_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "http://localhost:8081"
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("JOURNAL_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("journal api key is empty")
	}
	rateLimitPerMin := int64(60)
	if v := strings.TrimSpace(os.Getenv("JOURNAL_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &httpClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   time.Tick(interval),
	}, nil
}

func (c *httpClient) postJSON(ctx context.Context, path string, payload interface{}, out interface{}) error {
	<-c.limiter
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("journal api error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.Unmarshal(raw, out)
}

func (c *httpClient) getJSON(ctx context.Context, path string, out interface{}) error {
	<-c.limiter
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("journal api error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.Unmarshal(raw, out)
}

func (c *httpClient) ExecOrderItemAction(ctx context.Context, req ExecOrderItemActionRequest) (ActionResponse, error) {
	var resp ActionResponse
	if err := c.postJSON(ctx, "/api/order-item-action", req, &resp); err != nil {
		return ActionResponse{}, err
	}
	return resp, nil
}

func (c *httpClient) GetProductBundles(ctx context.Context, queries []BundleQuery) ([]BundleItem, error) {
	var resp BundlesResponse
	if err := c.postJSON(ctx, "/api/product-bundles", queries, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errors.New("bundle lookup rejected")
	}
	return resp.Products, nil
}

func (c *httpClient) GetProductStock(ctx context.Context, queries []StockQuery) ([]StockEntry, error) {
	var resp StockResponse
	if err := c.postJSON(ctx, "/api/product-stock", queries, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errors.New("stock lookup rejected")
	}
	return resp.Products, nil
}

func (c *httpClient) GetJournal(ctx context.Context) ([]Order, error) {
	var resp JournalResponse
	if err := c.getJSON(ctx, "/api/journal", &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errors.New("journal fetch rejected")
	}
	return resp.Orders, nil
}
