package config

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Retention RetentionConfig
	AI        AIConfig
	Log       LogConfig
	CORS      CORSConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	redis, err := loadRedisConfig()
	if err != nil {
		return nil, err
	}

	retention, err := loadRetentionConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Redis:     redis,
		Retention: retention,
		AI:        ai,
		Log:       LogConfig{Level: getEnvOrDefault("LOG_LEVEL", "info")},
		CORS:      loadCORSConfig(),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// RedisConfig 描述键值后端连接。
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
	// OpTimeout bounds every store operation issued by the services.
	OpTimeout    time.Duration
	MaxTxRetries int
}

func loadRedisConfig() (RedisConfig, error) {
	host := getEnvOrDefault("REDIS_HOST", "localhost")
	port := getEnvOrDefault("REDIS_PORT", "6380")
	if _, err := strconv.Atoi(port); err != nil {
		return RedisConfig{}, fmt.Errorf("invalid REDIS_PORT value %q: %w", port, err)
	}

	db, err := parseIntEnv("REDIS_DB", 0)
	if err != nil {
		return RedisConfig{}, err
	}

	poolSize, err := parseIntEnv("REDIS_POOL_SIZE", 20)
	if err != nil {
		return RedisConfig{}, err
	}

	dialTimeout, err := parseDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second)
	if err != nil {
		return RedisConfig{}, err
	}

	opTimeout, err := parseDurationEnv("REDIS_OP_TIMEOUT", 3*time.Second)
	if err != nil {
		return RedisConfig{}, err
	}

	retries, err := parseIntEnv("REDIS_MAX_TX_RETRIES", 8)
	if err != nil {
		return RedisConfig{}, err
	}
	if retries < 1 {
		retries = 1
	}

	return RedisConfig{
		Addr:         net.JoinHostPort(host, port),
		Password:     os.Getenv("REDIS_PASSWORD"),
		DB:           db,
		PoolSize:     poolSize,
		DialTimeout:  dialTimeout,
		OpTimeout:    opTimeout,
		MaxTxRetries: retries,
	}, nil
}

// DefaultRetentionDays 删除纪录默认保留天数。
const DefaultRetentionDays = 30

// RetentionConfig 描述删除纪录的保留窗口。
type RetentionConfig struct {
	Days int
}

// WindowSeconds 返回以秒计的保留窗口。
func (c RetentionConfig) WindowSeconds() int64 {
	return int64(c.Days) * 24 * 60 * 60
}

func loadRetentionConfig() (RetentionConfig, error) {
	days, err := parseIntEnv("DELETE_RECORD_RETENTION_DAYS", DefaultRetentionDays)
	if err != nil {
		return RetentionConfig{}, err
	}
	if days < 1 {
		return RetentionConfig{}, fmt.Errorf("invalid DELETE_RECORD_RETENTION_DAYS value %d: must be positive", days)
	}
	return RetentionConfig{Days: days}, nil
}

// LogConfig 描述日志级别。
type LogConfig struct {
	Level string
}

// CORSConfig 描述允许的跨域来源。
type CORSConfig struct {
	Origins []string
}

func loadCORSConfig() CORSConfig {
	raw := getEnvOrDefault("CORS_ORIGINS", "*")
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			origins = append(origins, v)
		}
	}
	return CORSConfig{Origins: origins}
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	PersonaID   string
	Temperature *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	if temperature == nil {
		def := 0.7
		temperature = &def
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}
	if maxTokens == nil {
		def := 800
		maxTokens = &def
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		PersonaID:   getEnvOrDefault("AI_PERSONA", "assistant"),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	return *val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
