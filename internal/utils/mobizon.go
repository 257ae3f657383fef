package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultMobizonBaseURL = "https://api.mobizon.kz"

type Client struct {
	ApiKey   string
	Sender   string // опционально
	DryRun   bool   // dry-run режим
	BaseURL  string
	Template string // fmt-шаблон текста, %s — код

	HTTP *http.Client
}

type SendSMSResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MessageID string `json:"messageId"`
	} `json:"data"`
}

type ClientOptions struct {
	APIKey   string
	Sender   string
	DryRun   bool
	BaseURL  string
	Template string
	Timeout  time.Duration
}

func NewClientWithOptions(o ClientOptions) *Client {
	base := strings.TrimRight(o.BaseURL, "/")
	if base == "" {
		base = defaultMobizonBaseURL
	}
	tpl := o.Template
	if tpl == "" {
		tpl = "%s"
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		ApiKey:   o.APIKey,
		Sender:   o.Sender,
		DryRun:   o.DryRun,
		BaseURL:  base,
		Template: tpl,
		HTTP:     &http.Client{Timeout: timeout},
	}
}

// Bypass — запрос наружу не уходит.
func (c *Client) Bypass() bool {
	return c.DryRun || c.ApiKey == "" || c.ApiKey == "dry-run"
}

// Send — отправка кода через Mobizon. В dry-run только лог без кода.
func (c *Client) Send(ctx context.Context, phone, code string) error {
	_, err := c.SendSMS(ctx, phone, fmt.Sprintf(c.Template, code))
	return err
}

// SendSMS — отправка произвольного текста через Mobizon (или имитация в dry-run)
func (c *Client) SendSMS(ctx context.Context, to, text string) (*SendSMSResponse, error) {
	if c.Bypass() {
		log.Printf("[mobizon][dry-run] to=%s sender=%q", MaskPhone(to), c.Sender)
		return &SendSMSResponse{Code: 0}, nil
	}

	form := url.Values{
		"apiKey":    {c.ApiKey},
		"recipient": {strings.TrimPrefix(to, "+")}, // Mobizon ждёт номер без "+"
		"text":      {text},
	}
	if c.Sender != "" {
		form.Set("from", c.Sender) // Если нужно указать Sender ID
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/service/message/sendsmsmessage", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build SMS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send SMS request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("mobizon http status: %d", resp.StatusCode)
	}

	var result SendSMSResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if result.Code != 0 {
		return nil, fmt.Errorf("mobizon returned error code: %d (%s)", result.Code, result.Message)
	}
	log.Printf("[mobizon][send] ok to=%s messageID=%s", MaskPhone(to), result.Data.MessageID)
	return &result, nil
}
