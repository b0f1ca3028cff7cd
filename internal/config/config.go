package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type AppConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	LogLevel   string `mapstructure:"log_level"`
	LogFile    string `mapstructure:"log_file"`
	StaticDir  string `mapstructure:"static_dir"`
	WordsFile  string `mapstructure:"words_file"`
	ArchiveDir string `mapstructure:"archive_dir"`

	Game GameConfig `mapstructure:"game"`
	LLM  LLMConfig  `mapstructure:"llm"`
}

type GameConfig struct {
	// 卧底数量，必须小于玩家总数
	SpyCount int `mapstructure:"spy_count"`
	// 每轮描述的最大字数
	MaxDescriptionLength int `mapstructure:"max_description_length"`
	// 投票阶段同时向外发起的请求上限
	VoteConcurrency int `mapstructure:"vote_concurrency"`
	// 重投最多进行的次数，超过后淘汰名字典序最小的平票者
	RevoteLimit int `mapstructure:"revote_limit"`
	// 平票时是否让平票者先进行辩护发言
	TieDebate bool `mapstructure:"tie_debate"`
	// 每个卧底是否各自独立抽取卧底词
	DistinctSpyWords bool `mapstructure:"distinct_spy_words"`
	// 大于 0 时，存活人数低于该值且卧底在场即判卧底胜
	SpyWinAliveCount int `mapstructure:"spy_win_alive_count"`
	// 跳过开局前的连通性检查
	SkipHealthCheck bool `mapstructure:"skip_health_check"`

	EventQueueSize   int    `mapstructure:"event_queue_size"`
	EventQueuePolicy string `mapstructure:"event_queue_policy"`
}

type LLMConfig struct {
	MaxAttempts  int     `mapstructure:"max_attempts"`
	BaseDelaySec float64 `mapstructure:"base_delay_sec"`
	TimeoutSec   int     `mapstructure:"timeout_sec"`
	Temperature  float64 `mapstructure:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens"`
}

var cfg *AppConfig

func GetConfig() *AppConfig {
	if cfg == nil {
		cfg = InitConfig()
	}

	return cfg
}

func InitConfig() *AppConfig {
	v := viper.New()

	v.SetConfigFile("app_config")
	v.SetConfigType("json")
	v.AddConfigPath(".")

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("static_dir", "./who-is-spy-fe")
	v.SetDefault("words_file", "./words.json")
	v.SetDefault("archive_dir", "./archive")

	v.SetDefault("game.spy_count", 2)
	v.SetDefault("game.max_description_length", 200)
	v.SetDefault("game.vote_concurrency", 3)
	v.SetDefault("game.revote_limit", 3)
	v.SetDefault("game.event_queue_size", 256)
	v.SetDefault("game.event_queue_policy", "Block")

	v.SetDefault("llm.max_attempts", 6)
	v.SetDefault("llm.base_delay_sec", 2.0)
	v.SetDefault("llm.timeout_sec", 60)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 500)

	if err := v.ReadInConfig(); err != nil {
		panic(fmt.Errorf("加载配置失败: %w", err))
	}

	var config AppConfig

	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("解析配置失败: %w", err))
	}

	return &config
}

// 提供商形态，决定走哪种 HTTP 协议
const (
	PROVIDER_OPENAI    = "openai"
	PROVIDER_ANTHROPIC = "anthropic"
)

type ProviderConfig struct {
	Name    string
	Kind    string
	APIKey  string
	BaseURL string
	Model   string
}

// 各提供商的环境变量约定：<NAME>_API_KEY / <NAME>_BASE_URL / <NAME>_MODEL
var providerEnvTable = []struct {
	name         string
	keyEnv       string
	urlEnv       string
	modelEnv     string
	defaultModel string
}{
	{"qwen", "QWEN_API_KEY", "QWEN_BASE_URL", "QWEN_MODEL", "qwen3-max"},
	{"mimo", "MIMO_API_KEY", "MIMO_BASE_URL", "MIMO_MODEL", "mimo-v2-flash"},
	{"deepseek", "DEEPSEEK_API_KEY", "DEEPSEEK_BASE_URL", "DEEPSEEK_MODEL", "deepseek-v3.2"},
	{"glm", "GLM_API_KEY", "GLM_BASE_URL", "GLM_MODEL", "glm-4.7"},
	{"kimi", "KIMI_API_KEY", "KIMI_BASE_URL", "KIMI_MODEL", "kimi-k2-thinking"},
	{"minimax", "MINIMAX_API_KEY", "MINIMAX_BASE_URL", "MINIMAX_MODEL", "MiniMax-M2.1"},
	{"doubao", "DOUBAO_API_KEY", "DOUBAO_BASE_URL", "DOUBAO_MODEL", "doubao-seed-1-8-251228"},
}

// LoadProviders 从 .env 和环境变量中注册可用的提供商。
// 只有 API Key 和 Base URL 均已配置的提供商才会被注册。
func LoadProviders() []ProviderConfig {
	if err := godotenv.Load(); err != nil {
		zap.S().Warnf("未找到 .env 文件，仅使用进程环境变量: %v", err)
	}

	providers := make([]ProviderConfig, 0, len(providerEnvTable)+1)

	for _, entry := range providerEnvTable {
		apiKey := os.Getenv(entry.keyEnv)
		baseURL := os.Getenv(entry.urlEnv)

		if apiKey == "" || baseURL == "" {
			continue
		}

		model := os.Getenv(entry.modelEnv)
		if model == "" {
			model = entry.defaultModel
		}

		providers = append(providers, ProviderConfig{
			Name:    entry.name,
			Kind:    PROVIDER_OPENAI,
			APIKey:  apiKey,
			BaseURL: baseURL,
			Model:   model,
		})
	}

	// Anthropic 使用独立的 API 形态，单独注册
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		baseURL := os.Getenv("ANTHROPIC_BASE_URL")
		if baseURL == "" {
			baseURL = "https://api.anthropic.com"
		}

		model := os.Getenv("ANTHROPIC_MODEL")
		if model == "" {
			model = "claude-3-5-sonnet-20241022"
		}

		providers = append(providers, ProviderConfig{
			Name:    "claude",
			Kind:    PROVIDER_ANTHROPIC,
			APIKey:  apiKey,
			BaseURL: baseURL,
			Model:   model,
		})
	}

	return providers
}
