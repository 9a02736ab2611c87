package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAPIBaseURL 账本默认地址
const DefaultAPIBaseURL = "http://localhost:8000/api"

// RateLimitConfig 按接口分组的客户端限速（每秒请求数，0 表示不限）
type RateLimitConfig struct {
	VotesPerSec  float64
	TradesPerSec float64
	ReadsPerSec  float64
}

// Config 应用配置
type Config struct {
	APIBaseURL            string
	RequestTimeout        time.Duration
	PageSize              int
	SearchDebounce        time.Duration
	TradeCompleteDelay    time.Duration
	VoteRollbackOnFailure bool
	SessionStorePath      string
	SessionStoreKey       string // 32 字节 hex/base64，可选
	StateDir              string
	CategoriesTTL         time.Duration
	RateLimit             RateLimitConfig
	LogLevel              string
	LogFile               string
}

var configFilePath string

// SetConfigPath 设置配置文件路径
func SetConfigPath(path string) {
	configFilePath = path
}

// GetConfigPath 获取配置文件路径
func GetConfigPath() string {
	return configFilePath
}

// ConfigFile 配置文件结构（用于 YAML/JSON 解析），指针字段区分“未设置”和零值
type ConfigFile struct {
	APIBaseURL            *string `yaml:"api_base_url" json:"api_base_url"`
	RequestTimeoutMs      *int    `yaml:"request_timeout_ms" json:"request_timeout_ms"`
	PageSize              *int    `yaml:"page_size" json:"page_size"`
	SearchDebounceMs      *int    `yaml:"search_debounce_ms" json:"search_debounce_ms"`
	TradeCompleteDelayMs  *int    `yaml:"trade_complete_delay_ms" json:"trade_complete_delay_ms"`
	VoteRollbackOnFailure *bool   `yaml:"vote_rollback_on_failure" json:"vote_rollback_on_failure"`
	SessionStorePath      *string `yaml:"session_store_path" json:"session_store_path"`
	SessionStoreKey       *string `yaml:"session_store_key" json:"session_store_key"`
	StateDir              *string `yaml:"state_dir" json:"state_dir"`
	CategoriesTTLSec      *int    `yaml:"categories_ttl_sec" json:"categories_ttl_sec"`
	RateLimit             struct {
		VotesPerSec  *float64 `yaml:"votes_per_sec" json:"votes_per_sec"`
		TradesPerSec *float64 `yaml:"trades_per_sec" json:"trades_per_sec"`
		ReadsPerSec  *float64 `yaml:"reads_per_sec" json:"reads_per_sec"`
	} `yaml:"rate_limit" json:"rate_limit"`
	LogLevel *string `yaml:"log_level" json:"log_level"`
	LogFile  *string `yaml:"log_file" json:"log_file"`
}

// Load 加载配置
func Load() (*Config, error) {
	return LoadFromFile(configFilePath)
}

// LoadFromFile 从指定文件加载配置（优先级：配置文件 > 环境变量 > 默认值）
func LoadFromFile(filePath string) (*Config, error) {
	cf := &ConfigFile{}
	if filePath != "" {
		loaded, err := loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
		cf = loaded
	}

	config := &Config{
		APIBaseURL:            pick(cf.APIBaseURL, getEnv("MEMESTREET_API_URL", DefaultAPIBaseURL)),
		RequestTimeout:        millis(pick(cf.RequestTimeoutMs, parseIntEnv("MEMESTREET_REQUEST_TIMEOUT_MS", 10000))),
		PageSize:              pick(cf.PageSize, parseIntEnv("MEMESTREET_PAGE_SIZE", 12)),
		SearchDebounce:        millis(pick(cf.SearchDebounceMs, parseIntEnv("MEMESTREET_SEARCH_DEBOUNCE_MS", 300))),
		TradeCompleteDelay:    millis(pick(cf.TradeCompleteDelayMs, parseIntEnv("MEMESTREET_TRADE_COMPLETE_DELAY_MS", 1500))),
		VoteRollbackOnFailure: pick(cf.VoteRollbackOnFailure, parseBoolEnv("MEMESTREET_VOTE_ROLLBACK_ON_FAILURE", true)),
		SessionStorePath:      pick(cf.SessionStorePath, getEnv("MEMESTREET_SESSION_STORE_PATH", "data/session")),
		SessionStoreKey:       pick(cf.SessionStoreKey, getEnv("MEMESTREET_SESSION_STORE_KEY", "")),
		StateDir:              pick(cf.StateDir, getEnv("MEMESTREET_STATE_DIR", "data/state")),
		CategoriesTTL:         time.Duration(pick(cf.CategoriesTTLSec, parseIntEnv("MEMESTREET_CATEGORIES_TTL_SEC", 600))) * time.Second,
		RateLimit: RateLimitConfig{
			VotesPerSec:  pick(cf.RateLimit.VotesPerSec, parseFloatEnv("MEMESTREET_VOTES_PER_SEC", 5)),
			TradesPerSec: pick(cf.RateLimit.TradesPerSec, parseFloatEnv("MEMESTREET_TRADES_PER_SEC", 2)),
			ReadsPerSec:  pick(cf.RateLimit.ReadsPerSec, parseFloatEnv("MEMESTREET_READS_PER_SEC", 10)),
		},
		LogLevel: pick(cf.LogLevel, getEnv("LOG_LEVEL", "info")),
		LogFile:  pick(cf.LogFile, getEnv("LOG_FILE", "")),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	configFilePath = filePath
	return config, nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var configFile ConfigFile
	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}
	return &configFile, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.APIBaseURL) == "" {
		errs = append(errs, errors.New("api_base_url 不能为空"))
	} else if u, err := url.Parse(c.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("api_base_url 无效: %q", c.APIBaseURL))
	}
	if c.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("page_size 必须大于 0，当前 %d", c.PageSize))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout_ms 必须大于 0"))
	}
	if c.SearchDebounce < 0 {
		errs = append(errs, fmt.Errorf("search_debounce_ms 不能为负数"))
	}
	if c.TradeCompleteDelay < 0 {
		errs = append(errs, fmt.Errorf("trade_complete_delay_ms 不能为负数"))
	}
	if c.CategoriesTTL < 0 {
		errs = append(errs, fmt.Errorf("categories_ttl_sec 不能为负数"))
	}
	if c.RateLimit.VotesPerSec < 0 || c.RateLimit.TradesPerSec < 0 || c.RateLimit.ReadsPerSec < 0 {
		errs = append(errs, fmt.Errorf("rate_limit 不能为负数"))
	}
	return errors.Join(errs...)
}

// pick 配置文件中设置了就用配置文件的值，否则用 fallback（环境变量或默认值）
func pick[T any](fromFile *T, fallback T) T {
	if fromFile != nil {
		return *fromFile
	}
	return fallback
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseFloatEnv 解析浮点数环境变量
func parseFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseBoolEnv 解析布尔环境变量
func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
