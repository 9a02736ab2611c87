package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/memestreet/marketsync/pkg/ratelimit"
)

var log = logrus.WithField("component", "ledger_client")

// CredentialSource 提供当前 bearer 凭证（由会话对象实现）
type CredentialSource interface {
	CurrentCredential() string
}

// SessionInvalidator 收到 401 时通知会话层
type SessionInvalidator interface {
	Invalidate(reason string)
}

// Config 客户端配置
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	Credentials CredentialSource
	Invalidator SessionInvalidator
	Limits      *ratelimit.Manager
	// HTTPClient 可选，测试时注入
	HTTPClient *http.Client
}

// Client 账本 HTTP 客户端
type Client struct {
	http        *resty.Client
	creds       CredentialSource
	invalidator SessionInvalidator
	limits      *ratelimit.Manager
}

// New 创建客户端。不做任何自动重试：瞬时错误交给调用方手动重试，401 交给会话层
func New(cfg Config) *Client {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var rc *resty.Client
	if cfg.HTTPClient != nil {
		rc = resty.NewWithClient(cfg.HTTPClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(base).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "memestreet-marketsync")

	return &Client{
		http:        rc,
		creds:       cfg.Credentials,
		invalidator: cfg.Invalidator,
		limits:      cfg.Limits,
	}
}

// do 发送请求并解码 JSON 响应
func (c *Client) do(ctx context.Context, group ratelimit.Group, method, path string, params url.Values, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.limits.Wait(ctx, group); err != nil {
		return errors.Wrapf(err, "rate limit %s", group)
	}

	reqID := uuid.NewString()
	req := c.http.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", reqID)
	if c.creds != nil {
		if token := c.creds.CurrentCredential(); token != "" {
			req.SetAuthToken(token)
		}
	}
	if len(params) > 0 {
		req.SetQueryParamsFromValues(params)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		log.WithField("request_id", reqID).Debugf("[ledger] %s %s failed: %v", method, path, err)
		return errors.Wrapf(err, "%s %s", method, path)
	}
	log.WithFields(logrus.Fields{
		"request_id": reqID,
		"status":     resp.StatusCode(),
		"elapsed":    time.Since(start),
	}).Debugf("[ledger] %s %s", method, path)

	if !resp.IsSuccess() {
		apiErr := parseAPIError(resp)
		if apiErr.StatusCode == http.StatusUnauthorized {
			log.Warnf("[ledger] 401 on %s %s, invalidating session", method, path)
			if c.invalidator != nil {
				c.invalidator.Invalidate(apiErr.Detail)
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return errors.Wrapf(err, "decode %s %s", method, path)
	}
	return nil
}
