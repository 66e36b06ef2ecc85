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

const africasTalkingAPIBase = "https://api.africastalking.com"

// AfricasTalkingConfig configures the primary SMS gateway.
type AfricasTalkingConfig struct {
	Username string
	APIKey   string
	BaseURL  string
	Logger   *slog.Logger
}

// AfricasTalkingClient sends SMS through the Africa's Talking bulk SMS API.
type AfricasTalkingClient struct {
	base     *BaseClient
	username string
	apiKey   string
	baseURL  string
	logger   *slog.Logger
}

var _ SMSGateway = (*AfricasTalkingClient)(nil)

func NewAfricasTalkingClient(httpClient *http.Client, cfg AfricasTalkingConfig) *AfricasTalkingClient {
	base := NewBaseClient(httpClient, "africastalking",
		RetryPolicy{MaxRetries: 1, MinWait: 500 * time.Millisecond, MaxWait: 3 * time.Second},
		WithUpstreamCode(types.ErrCodeUpstreamSMS))
	return NewAfricasTalkingClientWithBase(base, cfg)
}

func NewAfricasTalkingClientWithBase(base *BaseClient, cfg AfricasTalkingConfig) *AfricasTalkingClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = africasTalkingAPIBase
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AfricasTalkingClient{
		base:     base,
		username: cfg.Username,
		apiKey:   cfg.APIKey,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:   cfg.Logger,
	}
}

func (c *AfricasTalkingClient) Name() string { return "africastalking" }

type atResponse struct {
	SMSMessageData struct {
		Message    string `json:"Message"`
		Recipients []struct {
			StatusCode int    `json:"statusCode"`
			Number     string `json:"number"`
			Status     string `json:"status"`
			MessageID  string `json:"messageId"`
		} `json:"Recipients"`
	} `json:"SMSMessageData"`
}

// Send posts one message. Africa's Talking accepts the request with 201 even
// when the recipient is rejected, so the per-recipient status code decides.
func (c *AfricasTalkingClient) Send(ctx context.Context, to, body, from string) (string, error) {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("to", to)
	form.Set("message", body)
	if from != "" {
		form.Set("from", from)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/version1/messaging", strings.NewReader(form.Encode()))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build africastalking request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apiKey", c.apiKey)

	resp, err := c.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", types.NewAppErrorWithDetails(types.ErrCodeDeliveryRejected,
			fmt.Sprintf("africastalking returned %d", resp.StatusCode), nil,
			map[string]any{"status": resp.StatusCode})
	}

	var out atResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamSMS, "failed to decode africastalking response", err)
	}
	if len(out.SMSMessageData.Recipients) == 0 {
		return "", types.NewAppError(types.ErrCodeDeliveryRejected, "africastalking accepted no recipients: "+out.SMSMessageData.Message, nil)
	}

	r := out.SMSMessageData.Recipients[0]
	// 100 Processed, 101 Sent, 102 Queued.
	if r.StatusCode < 100 || r.StatusCode > 102 {
		return "", types.NewAppErrorWithDetails(types.ErrCodeDeliveryRejected,
			"africastalking rejected recipient: "+r.Status, nil,
			map[string]any{"status_code": r.StatusCode})
	}
	c.logger.DebugContext(ctx, "sms accepted", "gateway", c.Name(), "message_id", r.MessageID)
	return r.MessageID, nil
}
