package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig 全局配置。启动时统一加载，再按模块提取使用。
type AppConfig struct {
	LogLevel  string             `json:"log_level"`
	LogFormat string             `json:"log_format"`
	Server    ServerConfig       `json:"server"`
	Database  DatabaseConfig     `json:"database"`
	Redis     RedisConfig        `json:"redis"`
	Orchestra OrchestratorConfig `json:"orchestrator"`
	Auth      AuthConfig         `json:"auth"`
	OpenAI    OpenAIConfig       `json:"openai"`
	Credits   CreditsConfig      `json:"credits"`
	Mobile    MobileConfig       `json:"mobile"`
}

type ServerConfig struct {
	Host                string `json:"host"`
	Port                int    `json:"port"`
	ReadTimeoutSeconds  int    `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds"`
	RunTimeoutSeconds   int    `json:"run_timeout_seconds"`
}

type DatabaseConfig struct {
	URL                    string `json:"url"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

// OrchestratorConfig 执行编排配置：列分组阈值与状态动画节拍。
type OrchestratorConfig struct {
	ColumnThresholdPx   int `json:"column_threshold_px"`
	QueueDelayMs        int `json:"queue_delay_ms"`
	FocusDelayMs        int `json:"focus_delay_ms"`
	InitializingMs      int `json:"initializing_ms"`
	RunningMs           int `json:"running_ms"`
	ProgressStepMs      int `json:"progress_step_ms"`
	CompletionWaveMs    int `json:"completion_wave_ms"`
	NodeTimeoutSeconds  int `json:"node_timeout_seconds"`
	MaxNodesPerWorkflow int `json:"max_nodes_per_workflow"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
	JWTIssuer string `json:"jwt_issuer"`
}

type OpenAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

// CreditsConfig 月度工作流额度配置（按 tier 区分）。
type CreditsConfig struct {
	FreeLimit    int    `json:"free_limit"`
	ProLimit     int    `json:"pro_limit"`
	DefaultTier  string `json:"default_tier"`
	CounterKeyNS string `json:"counter_key_ns"`
}

// MobileConfig 移动端结果裁剪上限。
type MobileConfig struct {
	MaxNodes        int `json:"max_nodes"`
	MaxNodeTextLen  int `json:"max_node_text_len"`
	MaxAnalysisLen  int `json:"max_analysis_len"`
	MaxSectionCount int `json:"max_section_count"`
}

// Default 返回默认配置。
func Default() *AppConfig {
	return &AppConfig{
		LogLevel:  "info",
		LogFormat: "text",
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8080,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 600,
			RunTimeoutSeconds:   300,
		},
		Database: DatabaseConfig{
			MaxOpenConns:           25,
			MaxIdleConns:           5,
			ConnMaxLifetimeSeconds: 300,
		},
		Orchestra: OrchestratorConfig{
			ColumnThresholdPx:   150,
			QueueDelayMs:        400,
			FocusDelayMs:        300,
			InitializingMs:      500,
			RunningMs:           600,
			ProgressStepMs:      350,
			CompletionWaveMs:    150,
			NodeTimeoutSeconds:  120,
			MaxNodesPerWorkflow: 60,
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Credits: CreditsConfig{
			FreeLimit:    10,
			ProLimit:     500,
			DefaultTier:  "free",
			CounterKeyNS: "credits",
		},
		Mobile: MobileConfig{
			MaxNodes:        12,
			MaxNodeTextLen:  800,
			MaxAnalysisLen:  6000,
			MaxSectionCount: 8,
		},
	}
}

// Load 加载全局配置：默认值 -> 配置文件 -> 环境变量。
// 配置文件路径通过 APP_CONFIG_FILE 指定（JSON）。
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		// .env 非必需，忽略错误
	}

	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read APP_CONFIG_FILE %q failed: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse APP_CONFIG_FILE %q failed: %w", path, err)
	}
	return nil
}

func (c *AppConfig) applyEnv() {
	applyString("LOG_LEVEL", &c.LogLevel)
	applyString("LOG_FORMAT", &c.LogFormat)

	applyString("HOST", &c.Server.Host)
	applyInt("PORT", &c.Server.Port)
	applyInt("SERVER_READ_TIMEOUT", &c.Server.ReadTimeoutSeconds)
	applyInt("SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeoutSeconds)
	applyInt("SERVER_RUN_TIMEOUT", &c.Server.RunTimeoutSeconds)

	applyString("DATABASE_URL", &c.Database.URL)
	applyInt("DATABASE_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)
	applyInt("DATABASE_MAX_IDLE_CONNS", &c.Database.MaxIdleConns)
	applyInt("DATABASE_CONN_MAX_LIFETIME", &c.Database.ConnMaxLifetimeSeconds)

	applyString("REDIS_URL", &c.Redis.URL)

	applyInt("ORCH_COLUMN_THRESHOLD_PX", &c.Orchestra.ColumnThresholdPx)
	applyInt("ORCH_QUEUE_DELAY_MS", &c.Orchestra.QueueDelayMs)
	applyInt("ORCH_FOCUS_DELAY_MS", &c.Orchestra.FocusDelayMs)
	applyInt("ORCH_INITIALIZING_MS", &c.Orchestra.InitializingMs)
	applyInt("ORCH_RUNNING_MS", &c.Orchestra.RunningMs)
	applyInt("ORCH_PROGRESS_STEP_MS", &c.Orchestra.ProgressStepMs)
	applyInt("ORCH_COMPLETION_WAVE_MS", &c.Orchestra.CompletionWaveMs)
	applyInt("ORCH_NODE_TIMEOUT", &c.Orchestra.NodeTimeoutSeconds)
	applyInt("ORCH_MAX_NODES", &c.Orchestra.MaxNodesPerWorkflow)

	applyString("JWT_SECRET", &c.Auth.JWTSecret)
	applyString("JWT_ISSUER", &c.Auth.JWTIssuer)

	applyString("OPENAI_API_KEY", &c.OpenAI.APIKey)
	applyString("OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	applyString("OPENAI_MODEL", &c.OpenAI.Model)

	applyInt("CREDITS_FREE_LIMIT", &c.Credits.FreeLimit)
	applyInt("CREDITS_PRO_LIMIT", &c.Credits.ProLimit)
	applyString("CREDITS_DEFAULT_TIER", &c.Credits.DefaultTier)

	applyInt("MOBILE_MAX_NODES", &c.Mobile.MaxNodes)
	applyInt("MOBILE_MAX_NODE_TEXT_LEN", &c.Mobile.MaxNodeTextLen)
	applyInt("MOBILE_MAX_ANALYSIS_LEN", &c.Mobile.MaxAnalysisLen)
	applyInt("MOBILE_MAX_SECTION_COUNT", &c.Mobile.MaxSectionCount)
}

func (c *AppConfig) normalize() {
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.Orchestra.ColumnThresholdPx <= 0 {
		c.Orchestra.ColumnThresholdPx = 150
	}
	if c.Credits.CounterKeyNS == "" {
		c.Credits.CounterKeyNS = "credits"
	}
}

func (c *AppConfig) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Credits.DefaultTier) == "" {
		return fmt.Errorf("CREDITS_DEFAULT_TIER is required")
	}
	return nil
}

func applyString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func applyInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}
