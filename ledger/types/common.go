package types

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Side 交易方向
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid 是否为已知方向
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// SortKey 列表排序字段（与服务端 sort_by 白名单一致）
type SortKey string

const (
	SortMarketCap SortKey = "market_cap"
	SortPrice     SortKey = "price"
	SortVolume    SortKey = "volume"
	SortChange    SortKey = "change"
	SortUpvotes   SortKey = "upvotes"
	SortNewest    SortKey = "newest"
)

// Valid 是否在服务端白名单内
func (k SortKey) Valid() bool {
	switch k {
	case SortMarketCap, SortPrice, SortVolume, SortChange, SortUpvotes, SortNewest:
		return true
	}
	return false
}

// SortOrder 排序方向
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Valid 是否为 asc/desc
func (o SortOrder) Valid() bool {
	return o == SortAsc || o == SortDesc
}

// timestampLayouts 服务端时间格式（带/不带时区，带/不带微秒）
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Timestamp 宽松解析的时间戳。
// 无法解析的值不会报错，只会得到 Valid=false（调用方按“无有效时间”处理）。
// 不带时区的时间按 UTC 解释。
type Timestamp struct {
	Time  time.Time
	Valid bool
}

// NewTimestamp 构造有效时间戳
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t, Valid: !t.IsZero()}
}

// UnmarshalJSON 实现 json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	*t = Timestamp{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	*t = ParseTimestamp(raw)
	return nil
}

// MarshalJSON 实现 json.Marshaler
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

// ParseTimestamp 解析字符串时间，失败返回无效时间戳
func ParseTimestamp(raw string) Timestamp {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Timestamp{}
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return Timestamp{Time: ts, Valid: true}
		}
	}
	return Timestamp{}
}
