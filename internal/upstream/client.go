package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"character-sync/internal/models"
	svcerrors "character-sync/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	maxResponseBytes = 8 << 20
	defaultTimeout   = 20 * time.Second
)

// Provider error codes the service reacts to.
const (
	CodeAccountNotFound      = "AccountNotFound"
	CodeNotAuthenticated     = "NotAuthenticated"
	CodeNotAuthorized        = "NotAuthorized"
	CodeInvalidSessionTicket = "InvalidSessionTicket"
	CodeSessionTicketExpired = "SessionTicketExpired"
	CodeInvalidParams        = "InvalidParams"
)

var sessionErrorCodes = map[string]bool{
	CodeNotAuthenticated:     true,
	CodeNotAuthorized:        true,
	CodeInvalidSessionTicket: true,
	CodeSessionTicketExpired: true,
}

// notFoundCodes mark a data request that names no readable account.
var notFoundCodes = map[string]bool{
	CodeAccountNotFound: true,
	CodeInvalidParams:   true,
}

// APIError is the provider's error envelope.
type APIError struct {
	HTTPStatus int    `json:"code"`
	Status     string `json:"status"`
	Code       string `json:"error"`
	ErrorCode  int    `json:"errorCode"`
	Message    string `json:"errorMessage"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider error %s (%d): %s", e.Code, e.HTTPStatus, e.Message)
}

// IsAccountNotFound reports whether err is the provider's AccountNotFound error.
func IsAccountNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == CodeAccountNotFound
}

// Provider is the third-party character backend.
type Provider interface {
	LoginWithUsername(ctx context.Context, username, password string) (*models.ExternalAuth, error)
	LoginWithEmail(ctx context.Context, email, password string) (*models.ExternalAuth, error)
	LoginAnonymous(ctx context.Context) (*models.ExternalAuth, error)
	GetUserData(ctx context.Context, sessionToken string, req DataRequest) (*DataBag, error)
}

// DataRequest narrows a GetUserData call. The zero value fetches the whole
// bag of the session's own account.
type DataRequest struct {
	Keys      []string `json:"Keys,omitempty"`
	PlayFabID string   `json:"PlayFabId,omitempty"`
}

// ClientConfig configures Client.
type ClientConfig struct {
	BaseURL string
	TitleID string
	Timeout time.Duration
	// RateLimit is requests per second; zero disables client-side throttling.
	RateLimit float64
}

// Client is the HTTP implementation of Provider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	titleID    string
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *zap.Logger
}

var _ Provider = (*Client)(nil)

// NewClient creates a new provider client
func NewClient(cfg ClientConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit)+1)
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		titleID:    cfg.TitleID,
		timeout:    timeout,
		limiter:    limiter,
		logger:     logger,
	}
}

type loginResult struct {
	SessionTicket string `json:"SessionTicket"`
	PlayFabID     string `json:"PlayFabId"`
	EntityToken   struct {
		EntityToken string `json:"EntityToken"`
	} `json:"EntityToken"`
}

// LoginWithUsername logs in with a provider username.
func (c *Client) LoginWithUsername(ctx context.Context, username, password string) (*models.ExternalAuth, error) {
	return c.login(ctx, "/Client/LoginWithPlayFab", map[string]any{
		"TitleId":  c.titleID,
		"Username": username,
		"Password": password,
	})
}

// LoginWithEmail logs in with an e-mail address.
func (c *Client) LoginWithEmail(ctx context.Context, email, password string) (*models.ExternalAuth, error) {
	return c.login(ctx, "/Client/LoginWithEmailAddress", map[string]any{
		"TitleId":  c.titleID,
		"Email":    email,
		"Password": password,
	})
}

// LoginAnonymous opens a throwaway session under a random custom id. It is
// used to read publicly shared records.
func (c *Client) LoginAnonymous(ctx context.Context) (*models.ExternalAuth, error) {
	return c.login(ctx, "/Client/LoginWithCustomID", map[string]any{
		"TitleId":       c.titleID,
		"CustomId":      uuid.New().String(),
		"CreateAccount": true,
	})
}

func (c *Client) login(ctx context.Context, path string, body map[string]any) (*models.ExternalAuth, error) {
	var res loginResult
	if err := c.call(ctx, path, "", body, &res); err != nil {
		return nil, err
	}
	if res.SessionTicket == "" {
		return nil, svcerrors.Wrap(errors.New("login response without session ticket"), svcerrors.ErrUpstreamUnavailable)
	}
	return &models.ExternalAuth{
		ExternalAccountID: res.PlayFabID,
		SessionToken:      res.SessionTicket,
		EntityToken:       res.EntityToken.EntityToken,
	}, nil
}

// GetUserData fetches the data bag. Authorization failures are reported as
// ErrSessionExpired, an unknown account as ErrNotFound and any other provider
// rejection as ErrUpstreamUnavailable carrying the provider message.
func (c *Client) GetUserData(ctx context.Context, sessionToken string, req DataRequest) (*DataBag, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "/Client/GetUserData", sessionToken, req, &raw); err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return nil, err
		}
		switch {
		case apiErr.HTTPStatus == http.StatusUnauthorized || sessionErrorCodes[apiErr.Code]:
			return nil, svcerrors.Wrap(err, svcerrors.ErrSessionExpired)
		case notFoundCodes[apiErr.Code]:
			return nil, svcerrors.Wrap(err, svcerrors.WithReason(svcerrors.ErrNotFound, "no readable account for this request"))
		default:
			return nil, svcerrors.Wrap(err, svcerrors.WithReason(svcerrors.ErrUpstreamUnavailable, apiErr.Message))
		}
	}
	return ParseDataBag(raw)
}

type envelope struct {
	Code   int             `json:"code"`
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// call posts body to path and decodes the envelope's data into out. Provider
// error envelopes for 4xx responses come back as *APIError; transport
// failures, timeouts and 5xx responses as ErrUpstreamUnavailable.
func (c *Client) call(ctx context.Context, path, sessionToken string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return svcerrors.Wrap(fmt.Errorf("rate limiter: %w", err), svcerrors.ErrUpstreamUnavailable)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if sessionToken != "" {
		req.Header.Set("X-Authorization", sessionToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Provider request failed", zap.String("path", path), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return svcerrors.Wrap(fmt.Errorf("%s: %w", path, err), svcerrors.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return svcerrors.Wrap(fmt.Errorf("read %s response: %w", path, err), svcerrors.ErrUpstreamUnavailable)
	}

	c.logger.Debug("Provider request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode >= http.StatusInternalServerError {
		return svcerrors.Wrap(fmt.Errorf("%s: status=%d", path, resp.StatusCode), svcerrors.ErrUpstreamUnavailable)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{HTTPStatus: resp.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		apiErr.HTTPStatus = resp.StatusCode
		return apiErr
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return svcerrors.Wrap(fmt.Errorf("decode %s envelope: %w", path, err), svcerrors.ErrUpstreamUnavailable)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return svcerrors.Wrap(fmt.Errorf("decode %s data: %w", path, err), svcerrors.ErrUpstreamUnavailable)
	}
	return nil
}
