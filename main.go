package main

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"who-is-spy-llm/internal/api/http"
	"who-is-spy-llm/internal/archive"
	"who-is-spy-llm/internal/config"
	"who-is-spy-llm/internal/llm"
	"who-is-spy-llm/internal/logger"
	"who-is-spy-llm/internal/service"
	"who-is-spy-llm/internal/state"
	"who-is-spy-llm/internal/words"
)

func main() {
	// 加载配置
	cfg := config.InitConfig()

	// 初始化日志器
	logger.InitLogger(cfg.LogLevel, cfg.LogFile)

	// 注册模型提供商
	providers := config.LoadProviders()
	if len(providers) == 0 {
		zap.S().Fatal("没有配置任何模型提供商，请检查 .env")
	}

	invoker := llm.NewInvoker(llm.RetryPolicy{
		MaxAttempts: cfg.LLM.MaxAttempts,
		BaseDelay:   time.Duration(cfg.LLM.BaseDelaySec * float64(time.Second)),
		Jitter:      time.Second,
		Timeout:     time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	}, cfg.LLM.Temperature, cfg.LLM.MaxTokens)

	roster := make([]llm.AgentConfig, 0, len(providers))

	for _, p := range providers {
		switch p.Kind {
		case config.PROVIDER_ANTHROPIC:
			invoker.Register(llm.NewAnthropicProvider(p.Name, p.APIKey, p.BaseURL, p.Model))
		default:
			invoker.Register(llm.NewOpenAIProvider(p.Name, p.APIKey, p.BaseURL, p.Model))
		}

		roster = append(roster, llm.AgentConfig{
			Name:     strings.ToUpper(p.Name),
			Provider: p.Name,
			Model:    p.Model,
		})

		zap.S().Infof("注册提供商 %s（模型 %s）", p.Name, p.Model)
	}

	// 加载词库
	wordStore := words.LoadStore(cfg.WordsFile)

	// 初始化对局归档，失败不阻塞启动
	var archiver *archive.Archiver

	if cfg.ArchiveDir != "" {
		a, err := archive.Open(cfg.ArchiveDir)
		if err != nil {
			zap.S().Warnf("初始化归档失败，本次运行不落盘: %v", err)
		} else {
			archiver = a
			defer a.Close()
		}
	}

	// 组装应用状态
	arenaSvc := service.NewArenaService(invoker, roster, wordStore, cfg.Game, archiver)
	defer arenaSvc.Close()

	appState := state.NewAppState(
		cfg,
		arenaSvc,
	)

	// 启动服务器
	http.RunServer(appState)
}
