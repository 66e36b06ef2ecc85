package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hazardwatch/internal/types"
)

const twilioAPIBase = "https://api.twilio.com"

// TwilioConfig configures the secondary SMS gateway.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	BaseURL    string
	Logger     *slog.Logger
}

// TwilioClient sends SMS through the Twilio Messages API.
type TwilioClient struct {
	base       *BaseClient
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	logger     *slog.Logger
}

var _ SMSGateway = (*TwilioClient)(nil)

func NewTwilioClient(httpClient *http.Client, cfg TwilioConfig) *TwilioClient {
	base := NewBaseClient(httpClient, "twilio",
		RetryPolicy{MaxRetries: 1, MinWait: 500 * time.Millisecond, MaxWait: 3 * time.Second},
		WithUpstreamCode(types.ErrCodeUpstreamSMS))
	return NewTwilioClientWithBase(base, cfg)
}

func NewTwilioClientWithBase(base *BaseClient, cfg TwilioConfig) *TwilioClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = twilioAPIBase
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &TwilioClient{
		base:       base,
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		fromNumber: cfg.FromNumber,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:     cfg.Logger,
	}
}

func (c *TwilioClient) Name() string { return "twilio" }

type twilioMessage struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send posts one message. Twilio requires an E.164 sender, so an
// alphanumeric sender id passed as from is replaced by the configured number.
func (c *TwilioClient) Send(ctx context.Context, to, body, from string) (string, error) {
	if !strings.HasPrefix(from, "+") {
		from = c.fromNumber
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(c.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build twilio request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out twilioMessage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamSMS, "failed to decode twilio response", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return "", types.NewAppErrorWithDetails(types.ErrCodeDeliveryRejected,
			fmt.Sprintf("twilio rejected message: %s", out.Message), nil,
			map[string]any{"status": resp.StatusCode, "twilio_code": out.Code})
	}
	c.logger.DebugContext(ctx, "sms accepted", "gateway", c.Name(), "message_id", out.SID, "status", out.Status)
	return out.SID, nil
}
