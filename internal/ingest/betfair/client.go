package betfair

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"repricer_go/internal/domain"
)

// Client is the Betfair betting REST client (boundary layer).
type Client struct {
	baseURL      string
	appKey       string
	sessionToken string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewClient creates a REST client. An empty baseURL selects DefaultRestURL.
func NewClient(baseURL, appKey, sessionToken string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultRestURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		appKey:       appKey,
		sessionToken: sessionToken,
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		logger: logger.With("module", "betfair_client"),
	}
}

// ListMarketBook fetches best offers for the given markets.
// Transport failures, 429 and 5xx are returned as retriable *domain.NetworkError.
func (c *Client) ListMarketBook(ctx context.Context, marketIDs []string) ([]MarketBook, error) {
	if len(marketIDs) > maxMarketsPerRequest {
		return nil, domain.NewValidationError("market_ids", fmt.Sprint(len(marketIDs)), fmt.Sprintf("at most %d per request", maxMarketsPerRequest))
	}
	reqBody := listMarketBookRequest{
		MarketIDs:       marketIDs,
		PriceProjection: priceProjection{PriceData: []string{"EX_BEST_OFFERS"}},
	}

	resp, err := c.doRequest(ctx, http.MethodPost, listMarketBookPath, reqBody)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.NewFatalNetworkError("listMarketBook", err)
		}
		return nil, domain.NewNetworkError("listMarketBook", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewNetworkError("listMarketBook", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("status=%d code=%s", resp.StatusCode, errorCode(body))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, domain.NewNetworkError("listMarketBook", err)
		}
		return nil, domain.NewFatalNetworkError("listMarketBook", err)
	}

	return ParseBooks(body)
}

// doRequest handles auth headers and serialization.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Application", c.appKey)
	req.Header.Set("X-Authentication", c.sessionToken)

	return c.httpClient.Do(req)
}

func errorCode(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err != nil {
		return "unknown"
	}
	if code := e.Detail.APINGException.ErrorCode; code != "" {
		return code
	}
	if e.FaultCode != "" {
		return e.FaultCode
	}
	return "unknown"
}
