package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy 控制单次智能体调用的重试行为
type RetryPolicy struct {
	MaxAttempts int           // 最大尝试次数，含首次
	BaseDelay   time.Duration // 指数退避基数
	Jitter      time.Duration // 退避随机抖动上限
	Timeout     time.Duration // 单次请求超时
}

// Invoker 持有全部已注册的提供商，对上层暴露带重试的调用入口。
// 瞬时故障（429、5xx、超时、连接异常）与格式错误都会重试，
// 其余错误立即降级为 AGENT_UNAVAILABLE。
type Invoker struct {
	providers   map[string]Provider
	policy      RetryPolicy
	temperature float64
	maxTokens   int
}

var _ AgentInvoker = (*Invoker)(nil)

func NewInvoker(policy RetryPolicy, temperature float64, maxTokens int) *Invoker {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	if policy.Timeout <= 0 {
		policy.Timeout = 60 * time.Second
	}

	return &Invoker{
		providers:   make(map[string]Provider),
		policy:      policy,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

func (iv *Invoker) Register(p Provider) {
	iv.providers[p.Name()] = p
}

func (iv *Invoker) Invoke(ctx context.Context, agent AgentConfig, prompt Prompt, kind string) InvocationResult {
	provider, ok := iv.providers[agent.Provider]
	if !ok {
		return InvocationResult{Failure: &Failure{
			Kind: FAIL_AGENT_UNAVAILABLE,
			Err:  fmt.Errorf("未注册的提供商: %s", agent.Provider),
		}}
	}

	messages := make([]Message, 0, 2)
	if prompt.System != "" {
		messages = append(messages, Message{Role: "system", Content: prompt.System})
	}

	messages = append(messages, Message{Role: "user", Content: prompt.User})

	req := ChatRequest{
		Model:       agent.Model,
		Messages:    messages,
		Temperature: iv.temperatureFor(kind),
		MaxTokens:   iv.maxTokens,
	}

	var lastErr error

	lastKind := FAIL_AGENT_UNAVAILABLE

	for attempt := 1; attempt <= iv.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := iv.waitBeforeRetry(ctx, attempt); err != nil {
				return InvocationResult{Failure: &Failure{
					Kind: FAIL_AGENT_UNAVAILABLE,
					Err:  fmt.Errorf("等待重试时被中断: %w", err),
				}}
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, iv.policy.Timeout)
		resp, err := provider.Chat(callCtx, req)
		cancel()

		if err != nil {
			if !isTransient(err) {
				return InvocationResult{Failure: &Failure{
					Kind: FAIL_AGENT_UNAVAILABLE,
					Err:  err,
				}}
			}

			lastErr = err
			lastKind = FAIL_AGENT_UNAVAILABLE

			zap.L().Warn("模型调用失败",
				zap.String("agent", agent.Name),
				zap.Int("attempt", attempt),
				zap.Error(err))

			continue
		}

		thinking, content, parseErr := parseByKind(kind, resp.Content, prompt.Candidates)
		if parseErr != nil {
			lastErr = parseErr
			lastKind = FAIL_MALFORMED_RESPONSE

			zap.L().Warn("模型回复解析失败",
				zap.String("agent", agent.Name),
				zap.Int("attempt", attempt),
				zap.Error(parseErr))

			continue
		}

		return InvocationResult{Thinking: thinking, Content: content}
	}

	return InvocationResult{Failure: &Failure{
		Kind: lastKind,
		Err:  fmt.Errorf("重试 %d 次后仍然失败: %w", iv.policy.MaxAttempts, lastErr),
	}}
}

// HealthCheck 发起一次最小调用验证提供商连通性
func (iv *Invoker) HealthCheck(ctx context.Context, agent AgentConfig) error {
	provider, ok := iv.providers[agent.Provider]
	if !ok {
		return fmt.Errorf("未注册的提供商: %s", agent.Provider)
	}

	callCtx, cancel := context.WithTimeout(ctx, iv.policy.Timeout)
	defer cancel()

	_, err := provider.Chat(callCtx, ChatRequest{
		Model:     agent.Model,
		Messages:  []Message{{Role: "user", Content: "请回复'OK'"}},
		MaxTokens: 10,
	})
	if err != nil {
		return fmt.Errorf("健康检查失败: %w", err)
	}

	return nil
}

// 按调用阶段取温度：描述要活人味，投票要冷静
func (iv *Invoker) temperatureFor(kind string) float64 {
	switch kind {
	case KIND_DESCRIBE:
		return 0.85
	case KIND_VOTE:
		return 0.4
	case KIND_LAST_WORDS:
		return 0.8
	case KIND_DEBATE:
		return 0.7
	default:
		return iv.temperature
	}
}

// 第 n 次尝试前的等待：BaseDelay * 2^(n-2) 加 [0, Jitter) 抖动
func (iv *Invoker) waitBeforeRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(float64(iv.policy.BaseDelay) * math.Pow(2, float64(attempt-2)))
	if iv.policy.Jitter > 0 {
		delay += time.Duration(rand.Float64() * float64(iv.policy.Jitter))
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode >= http.StatusInternalServerError
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// url.Error、net.OpError 等连接类故障
	var netErr net.Error
	return errors.As(err, &netErr)
}
