package llm

import (
	"context"
	"fmt"
)

// 调用阶段，决定响应按什么结构解析
const (
	KIND_DESCRIBE   = "Describe"
	KIND_VOTE       = "Vote"
	KIND_LAST_WORDS = "LastWords"
	KIND_DEBATE     = "Debate"
)

// 失败类别。瞬态错误在 Invoker 内部重试，
// 重试耗尽后降级为 AgentUnavailable 返回给引擎。
const (
	FAIL_AGENT_UNAVAILABLE  = "AgentUnavailable"
	FAIL_MALFORMED_RESPONSE = "MalformedResponse"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

type ChatResponse struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// APIError 携带远程服务返回的 HTTP 状态码，供重试策略分类
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API 错误 (HTTP %d): %s", e.StatusCode, e.Message)
}

// Provider 是单个远程模型服务的最小抽象
type Provider interface {
	Name() string
	IsAvailable() bool
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// AgentConfig 标识一次调用的目标：哪个玩家、走哪个提供商、用什么模型。
// Model 为空时使用提供商的默认模型。
type AgentConfig struct {
	Name     string
	Provider string
	Model    string
}

// Prompt 是一次调用的完整输入。
// Candidates 仅投票类调用使用，供解析时做合法目标的兜底匹配。
type Prompt struct {
	System     string
	User       string
	Candidates []string
}

type Failure struct {
	Kind string
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

// InvocationResult 是调用的最终结果：要么带着思考过程的内容，
// 要么一个终态失败。失败从不以 panic 或裸错误越过这层边界。
type InvocationResult struct {
	Thinking string
	Content  string
	Failure  *Failure
}

func (r InvocationResult) OK() bool {
	return r.Failure == nil
}

type AgentInvoker interface {
	Invoke(ctx context.Context, agent AgentConfig, prompt Prompt, kind string) InvocationResult
	HealthCheck(ctx context.Context, agent AgentConfig) error
}
