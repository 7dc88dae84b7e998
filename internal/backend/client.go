// Package backend is the client of the verification service that links
// Discord accounts to wallets.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/ratelimit"
	"moff.io/wallet-verify/internal/verify"
	"moff.io/wallet-verify/pkg/errors"
	"moff.io/wallet-verify/pkg/log"
)

const (
	discordAuthPath  = "/discord-auth"
	verifyWalletPath = "/verify-wallet"
)

// Client is the verification backend client. It implements verify.Backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	pacer      ratelimit.Limiter
}

// New creates a backend client. No request is retried.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithRateLimit paces outgoing requests to at most rps per second.
func (c *Client) WithRateLimit(rps int) *Client {
	if rps > 0 {
		c.pacer = ratelimit.New(rps)
	}
	return c
}

type discordAuthRequest struct {
	Code string `json:"code"`
}

// DiscordAuth exchanges an OAuth authorization code for the Discord user.
func (c *Client) DiscordAuth(ctx context.Context, code string) (*verify.DiscordUser, error) {
	var user verify.DiscordUser
	body, err := c.post(ctx, discordAuthPath, discordAuthRequest{Code: code})
	if err != nil {
		return nil, errors.Wrap(err, "backend.DiscordAuth")
	}
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, errors.Wrap(err, "backend.DiscordAuth: decode response")
	}
	if user.ID == "" {
		return nil, errors.Errorf("backend.DiscordAuth: response without user id: %s", string(body))
	}
	return &user, nil
}

// VerifyWallet submits the signed challenge. The returned message is empty
// when the backend did not send one.
func (c *Client) VerifyWallet(ctx context.Context, s verify.Submission) (string, error) {
	body, err := c.post(ctx, verifyWalletPath, s)
	if err != nil {
		return "", errors.Wrap(err, "backend.VerifyWallet")
	}
	return gjson.GetBytes(body, "message").String(), nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal body")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.pacer != nil {
		c.pacer.Take()
	}
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()
	log.Debugf("backend POST %v -> %v in %v", path, resp.StatusCode, time.Since(start))

	// 1 MB max body
	respBody, err := ioutil.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}
	return respBody, nil
}

func errorMessage(body []byte) string {
	for _, field := range []string{"error", "message"} {
		if msg := gjson.GetBytes(body, field).String(); msg != "" {
			return msg
		}
	}
	return strings.TrimSpace(string(body))
}
