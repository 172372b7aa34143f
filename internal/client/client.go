// Package client implements the device web API calls used by the probe.
// Every call runs on its own connection with no cookie jar, so nothing
// leaks from one exchange to the next.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/and161185/gwn-voltage/internal/client/transport"
	"github.com/and161185/gwn-voltage/internal/config"
	"go.uber.org/zap"
)

const (
	acceptAny  = "application/json, text/plain, */*"
	acceptJSON = "application/json"

	maxBodySize = 1 << 20
)

// Endpoints are the device URLs used during a check.
type Endpoints struct {
	Nonce     string
	Login     string
	Logout    string
	Telemetry string
}

// NewEndpoints builds the device URLs for host (an IP or host[:port]).
func NewEndpoints(scheme, host string) Endpoints {
	base := scheme + "://" + host
	return Endpoints{
		Nonce:     base + "/get.cgi?cmd=get_nonce",
		Login:     base + "/set.cgi?cmd=login",
		Logout:    base + "/set.cgi?cmd=logout",
		Telemetry: base + "/get.cgi?cmd=poe_get_powerinfo",
	}
}

// Client talks to the device web API.
type Client struct {
	newHTTP func() *http.Client
	logger  *zap.SugaredLogger
}

// NewClient creates a client that opens a fresh transport for every call.
func NewClient(cfg *config.ProbeConfig, logger *zap.SugaredLogger) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	return NewClientWithHTTP(func() *http.Client { return NewHTTPClient(timeout, logger) }, logger)
}

// DI: factory is called once per request
func NewClientWithHTTP(factory func() *http.Client, logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{newHTTP: factory, logger: logger}
}

// fabric http-client: no keep-alive, no cookie jar
func NewHTTPClient(timeout time.Duration, logger *zap.SugaredLogger) *http.Client {
	base := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		DisableKeepAlives: true,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &transport.BrowserRoundTripper{Base: base, Logger: logger},
	}
}

type nonceResponse struct {
	Data struct {
		Nonce *string `json:"nonce"`
	} `json:"data"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Code json.Number `json:"code"`
	Data struct {
		Token *string `json:"token"`
	} `json:"data"`
}

type logoutRequest struct {
	Token string `json:"token"`
}

// FetchNonce requests a single-use login nonce.
func (clnt *Client) FetchNonce(ctx context.Context, url, deviceIP string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("nonce: new request: %w", err)
	}
	setDeviceHeaders(req, deviceIP, acceptAny, false)

	code, body, err := clnt.do(req)
	if err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	if code != http.StatusOK {
		return "", &StatusError{Op: "nonce", Code: code}
	}

	var nr nonceResponse
	if err := json.Unmarshal(body, &nr); err != nil {
		return "", fmt.Errorf("nonce: %w: %v", ErrMalformedResponse, err)
	}
	if nr.Data.Nonce == nil {
		return "", fmt.Errorf("nonce: %w: missing data.nonce", ErrMalformedResponse)
	}
	clnt.logger.Debugw("nonce received", "device", deviceIP)
	return *nr.Data.Nonce, nil
}

// Login submits the challenge response and returns the session token.
func (clnt *Client) Login(ctx context.Context, url, deviceIP, username, challenge string) (string, error) {
	raw, err := json.Marshal(loginRequest{Username: username, Password: challenge})
	if err != nil {
		return "", fmt.Errorf("login: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("login: new request: %w", err)
	}
	setDeviceHeaders(req, deviceIP, acceptJSON, true)

	code, body, err := clnt.do(req)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if code != http.StatusOK {
		return "", &StatusError{Op: "login", Code: code}
	}

	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return "", fmt.Errorf("login: %w: %v", ErrMalformedResponse, err)
	}
	if !isCode200(lr.Code) {
		return "", fmt.Errorf("login: %w: code %q", ErrRejected, lr.Code.String())
	}
	if lr.Data.Token == nil || *lr.Data.Token == "" {
		return "", fmt.Errorf("login: %w: missing data.token", ErrMalformedResponse)
	}
	clnt.logger.Debugw("login accepted", "device", deviceIP, "token", Redact(*lr.Data.Token))
	return *lr.Data.Token, nil
}

// GetAuthenticated fetches url with the session token and returns the raw JSON body.
func (clnt *Client) GetAuthenticated(ctx context.Context, url, token string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("telemetry: new request: %w", err)
	}
	req.Header.Set("Accept", acceptJSON)
	req.Header.Set("Authorization", token)

	code, body, err := clnt.do(req)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	if code != http.StatusOK {
		return nil, &StatusError{Op: "telemetry", Code: code}
	}
	return json.RawMessage(body), nil
}

// Logout invalidates the session token. It reports whether the device
// answered 200; failures are logged and otherwise ignored.
func (clnt *Client) Logout(ctx context.Context, url, deviceIP, token string) bool {
	raw, err := json.Marshal(logoutRequest{Token: token})
	if err != nil {
		clnt.logger.Warnw("logout: marshal", "error", err)
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		clnt.logger.Warnw("logout: new request", "error", err)
		return false
	}
	setDeviceHeaders(req, deviceIP, acceptAny, true)
	req.Header.Set("Authorization", token)

	code, _, err := clnt.do(req)
	if err != nil {
		clnt.logger.Warnw("logout failed", "device", deviceIP, "error", err)
		return false
	}
	if code != http.StatusOK {
		clnt.logger.Warnw("logout failed", "device", deviceIP, "status", code)
		return false
	}
	clnt.logger.Debugw("logged out", "device", deviceIP, "token", Redact(token))
	return true
}

// do runs req on a fresh http.Client and tears it down before returning.
func (clnt *Client) do(req *http.Request) (int, []byte, error) {
	hc := clnt.newHTTP()
	defer hc.CloseIdleConnections()

	resp, err := hc.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// setDeviceHeaders sets the headers the device web UI sends. User-Agent and
// X-Requested-With are filled in by the transport.
func setDeviceHeaders(req *http.Request, deviceIP, accept string, withBody bool) {
	req.Host = deviceIP
	req.Header.Set("Accept", accept)
	req.Header.Set("Referer", "http://"+deviceIP+"/")
	if withBody {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Origin", "http://"+deviceIP)
	}
}

func isCode200(n json.Number) bool {
	f, err := strconv.ParseFloat(n.String(), 64)
	return err == nil && f == http.StatusOK
}

// Redact shortens a token for logging.
func Redact(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
