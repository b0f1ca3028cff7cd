package llm

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// 按调用次数出剧本的假提供商
type scriptedProvider struct {
	name  string
	calls int
	run   func(call int, req ChatRequest) (*ChatResponse, error)
}

func (p *scriptedProvider) Name() string      { return p.name }
func (p *scriptedProvider) IsAvailable() bool { return true }

func (p *scriptedProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	p.calls++
	return p.run(p.calls, req)
}

func fastPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		Timeout:     time.Second,
	}
}

func TestInvoker_TransientErrorsExhaustAttempts(t *testing.T) {
	provider := &scriptedProvider{
		name: "mock",
		run: func(int, ChatRequest) (*ChatResponse, error) {
			return nil, &APIError{StatusCode: 500, Message: "internal error"}
		},
	}

	iv := NewInvoker(fastPolicy(3), 0.7, 500)
	iv.Register(provider)

	result := iv.Invoke(context.Background(), AgentConfig{Name: "P1", Provider: "mock"}, Prompt{User: "hi"}, KIND_DESCRIBE)

	if result.OK() {
		t.Fatalf("invocation should fail")
	}

	if provider.calls != 3 {
		t.Fatalf("want exactly 3 attempts, got %d", provider.calls)
	}

	if result.Failure.Kind != FAIL_AGENT_UNAVAILABLE {
		t.Fatalf("want %s got %s", FAIL_AGENT_UNAVAILABLE, result.Failure.Kind)
	}
}

func TestInvoker_NonTransientErrorFailsFast(t *testing.T) {
	provider := &scriptedProvider{
		name: "mock",
		run: func(int, ChatRequest) (*ChatResponse, error) {
			return nil, &APIError{StatusCode: 401, Message: "invalid api key"}
		},
	}

	iv := NewInvoker(fastPolicy(5), 0.7, 500)
	iv.Register(provider)

	result := iv.Invoke(context.Background(), AgentConfig{Name: "P1", Provider: "mock"}, Prompt{User: "hi"}, KIND_DESCRIBE)

	if result.OK() {
		t.Fatalf("invocation should fail")
	}

	if provider.calls != 1 {
		t.Fatalf("non-transient error should not retry, got %d calls", provider.calls)
	}
}

func TestInvoker_MalformedResponseRetriedThenSurfaced(t *testing.T) {
	provider := &scriptedProvider{
		name: "mock",
		run: func(int, ChatRequest) (*ChatResponse, error) {
			return &ChatResponse{Content: "我弃权。"}, nil
		},
	}

	iv := NewInvoker(fastPolicy(2), 0.7, 500)
	iv.Register(provider)

	prompt := Prompt{User: "vote", Candidates: []string{"QWEN", "KIMI"}}
	result := iv.Invoke(context.Background(), AgentConfig{Name: "P1", Provider: "mock"}, prompt, KIND_VOTE)

	if result.OK() {
		t.Fatalf("invocation should fail")
	}

	if provider.calls != 2 {
		t.Fatalf("malformed response should be retried, got %d calls", provider.calls)
	}

	if result.Failure.Kind != FAIL_MALFORMED_RESPONSE {
		t.Fatalf("want %s got %s", FAIL_MALFORMED_RESPONSE, result.Failure.Kind)
	}
}

func TestInvoker_RecoversAfterTransientError(t *testing.T) {
	provider := &scriptedProvider{
		name: "mock",
		run: func(call int, req ChatRequest) (*ChatResponse, error) {
			if call == 1 {
				return nil, &APIError{StatusCode: 429, Message: "rate limited"}
			}

			if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
				return nil, fmt.Errorf("unexpected messages: %+v", req.Messages)
			}

			return &ChatResponse{Content: "思考：稳住。\n发言：它放在口袋里正合适。"}, nil
		},
	}

	iv := NewInvoker(fastPolicy(3), 0.7, 500)
	iv.Register(provider)

	prompt := Prompt{System: "你是玩家", User: "请描述"}
	result := iv.Invoke(context.Background(), AgentConfig{Name: "P1", Provider: "mock"}, prompt, KIND_DESCRIBE)

	if !result.OK() {
		t.Fatalf("invocation should succeed, got: %v", result.Failure)
	}

	if provider.calls != 2 {
		t.Fatalf("want 2 attempts, got %d", provider.calls)
	}

	if result.Content != "它放在口袋里正合适。" {
		t.Fatalf("content not parsed, got %q", result.Content)
	}

	if result.Thinking != "稳住。" {
		t.Fatalf("thinking not parsed, got %q", result.Thinking)
	}
}

func TestInvoker_UnknownProviderFailsWithoutCall(t *testing.T) {
	iv := NewInvoker(fastPolicy(3), 0.7, 500)

	result := iv.Invoke(context.Background(), AgentConfig{Name: "P1", Provider: "ghost"}, Prompt{User: "hi"}, KIND_DESCRIBE)

	if result.OK() {
		t.Fatalf("invocation should fail")
	}

	if result.Failure.Kind != FAIL_AGENT_UNAVAILABLE {
		t.Fatalf("want %s got %s", FAIL_AGENT_UNAVAILABLE, result.Failure.Kind)
	}
}

func TestInvoker_HealthCheckUsesMinimalRequest(t *testing.T) {
	provider := &scriptedProvider{
		name: "mock",
		run: func(_ int, req ChatRequest) (*ChatResponse, error) {
			if req.MaxTokens != 10 {
				return nil, fmt.Errorf("want max_tokens=10 got %d", req.MaxTokens)
			}

			if len(req.Messages) != 1 || req.Messages[0].Content != "请回复'OK'" {
				return nil, fmt.Errorf("unexpected probe message: %+v", req.Messages)
			}

			return &ChatResponse{Content: "OK"}, nil
		},
	}

	iv := NewInvoker(fastPolicy(1), 0.7, 500)
	iv.Register(provider)

	if err := iv.HealthCheck(context.Background(), AgentConfig{Name: "P1", Provider: "mock"}); err != nil {
		t.Fatalf("health check should pass, got: %v", err)
	}

	bad := &scriptedProvider{
		name: "down",
		run: func(int, ChatRequest) (*ChatResponse, error) {
			return nil, &APIError{StatusCode: 503, Message: "unavailable"}
		},
	}
	iv.Register(bad)

	if err := iv.HealthCheck(context.Background(), AgentConfig{Name: "P2", Provider: "down"}); err == nil {
		t.Fatalf("health check should fail")
	}
}

func TestInvoker_AbortedContextStopsRetries(t *testing.T) {
	provider := &scriptedProvider{
		name: "mock",
		run: func(int, ChatRequest) (*ChatResponse, error) {
			return nil, &APIError{StatusCode: 500, Message: "internal error"}
		},
	}

	iv := NewInvoker(RetryPolicy{MaxAttempts: 5, BaseDelay: time.Minute, Timeout: time.Second}, 0.7, 500)
	iv.Register(provider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := iv.Invoke(ctx, AgentConfig{Name: "P1", Provider: "mock"}, Prompt{User: "hi"}, KIND_DESCRIBE)

	if result.OK() {
		t.Fatalf("invocation should fail")
	}

	if provider.calls != 1 {
		t.Fatalf("canceled context should stop retries, got %d calls", provider.calls)
	}
}
