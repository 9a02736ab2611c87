package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// ErrUnauthorized 凭证失效（401），会话层负责清理，客户端不重试
var ErrUnauthorized = errors.New("ledger: unauthorized")

// APIError 账本返回的非 2xx 响应
type APIError struct {
	StatusCode int
	// Detail 服务端 detail 字段（拒绝原因原文），可能为空
	Detail string
	Body   string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("ledger: http %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("ledger: http %d", e.StatusCode)
}

// Unwrap 让 errors.Is(err, ErrUnauthorized) 对 401 生效
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// DetailOf 提取服务端拒绝原因，不是 APIError 时返回空串
func DetailOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return ""
}

// parseAPIError 解析错误响应。detail 可能是字符串，也可能是校验错误数组
func parseAPIError(resp *resty.Response) *APIError {
	body := resp.Body()
	apiErr := &APIError{StatusCode: resp.StatusCode(), Body: string(body)}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return apiErr
	}
	var text string
	if err := json.Unmarshal(payload.Detail, &text); err == nil {
		apiErr.Detail = text
		return apiErr
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		apiErr.Detail = strings.Join(msgs, "; ")
	}
	return apiErr
}
