// Package market is the adapter for the external options venue: a REST
// client for fill submission and a WebSocket client for the signed-offer
// feed. All requests are HMAC-authenticated; API credentials are derived
// once per process via an EIP-712 auth message.
package market

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alanyoungcy/optionsvault/internal/crypto"
	"github.com/alanyoungcy/optionsvault/internal/domain"
)

// Client is the REST client for the options venue API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	hmacAuth   *crypto.HMACAuth
}

// NewClient creates a venue REST client.
//
// baseURL is the venue API root. signer signs the auth message used to derive
// HMAC credentials; hmac may be nil when Authenticate will be called first.
func NewClient(baseURL string, signer *crypto.Signer, hmac *crypto.HMACAuth) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		signer:   signer,
		hmacAuth: hmac,
	}
}

// SubmitFill submits a counter-signed order fill to the venue and blocks
// until the venue accepts or rejects it. Rejections return
// domain.ErrMarketRejected; transport failures and timeouts return
// domain.ErrMarketUnavailable.
func (c *Client) SubmitFill(ctx context.Context, order domain.OptionOrder, signature string, collateral int64, correlationID string) (domain.FillResult, error) {
	body := fillRequest{
		Order:         toAPIOrder(order),
		Signature:     signature,
		Collateral:    collateral,
		CorrelationID: correlationID,
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/fills", body)
	if err != nil {
		return domain.FillResult{}, fmt.Errorf("market: submit fill: %w", err)
	}

	var result fillResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return domain.FillResult{}, fmt.Errorf("market: decode fill response: %w", err)
	}
	if !result.Success {
		return domain.FillResult{}, fmt.Errorf("market: %s: %w", result.ErrorMsg, domain.ErrMarketRejected)
	}

	return domain.FillResult{
		Premium:        result.Premium,
		CollateralUsed: result.CollateralUsed,
		ExternalRef:    result.PositionRef,
	}, nil
}

// Position fetches the venue-side state of a position by its reference.
func (c *Client) Position(ctx context.Context, externalRef string) (domain.FillResult, error) {
	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodGet, "/positions/"+externalRef, nil)
	if err != nil {
		return domain.FillResult{}, fmt.Errorf("market: get position %s: %w", externalRef, err)
	}

	var result fillResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return domain.FillResult{}, fmt.Errorf("market: decode position: %w", err)
	}
	return domain.FillResult{
		Premium:        result.Premium,
		CollateralUsed: result.CollateralUsed,
		ExternalRef:    result.PositionRef,
	}, nil
}

// Authenticate derives HMAC API credentials by signing an EIP-712 auth
// message. On success it populates the client's hmacAuth field.
func (c *Client) Authenticate(ctx context.Context) error {
	timestamp := time.Now().Unix()
	nonce := int64(0)

	sig, err := c.signer.SignAuthMessage(timestamp, nonce)
	if err != nil {
		return fmt.Errorf("market: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return fmt.Errorf("market: create auth request: %w", err)
	}
	req.Header.Set("VENUE-ADDRESS", c.signer.Address().Hex())
	req.Header.Set("VENUE-SIGNATURE", sig)
	req.Header.Set("VENUE-TIMESTAMP", fmt.Sprintf("%d", timestamp))
	req.Header.Set("VENUE-NONCE", fmt.Sprintf("%d", nonce))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("market: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("market: read auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("market: auth failed (HTTP %d): %s", resp.StatusCode, string(respBody))
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return fmt.Errorf("market: decode auth response: %w", err)
	}

	c.hmacAuth = &crypto.HMACAuth{
		Key:        authResp.APIKey,
		Secret:     authResp.Secret,
		Passphrase: authResp.Passphrase,
	}
	return nil
}

// doAuthenticatedRequest builds, signs (HMAC), sends, and reads an HTTP
// request against the venue API. It returns the raw response body.
func (c *Client) doAuthenticatedRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.hmacAuth != nil {
		headers := c.hmacAuth.Headers(c.signer.Address().Hex(), method, path, bodyStr)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		// Timeouts and transport failures are transient from the vault's
		// perspective; the caller may retry the same order.
		return nil, fmt.Errorf("%w: %v", domain.ErrMarketUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrMarketUnavailable, err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case statusCode >= 400 && statusCode < 500:
		// The venue refused the request itself.
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrMarketRejected, statusCode, bodyStr)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrMarketUnavailable, statusCode, bodyStr)
	}
}
