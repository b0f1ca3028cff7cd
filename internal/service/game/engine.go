package game

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"who-is-spy-llm/internal/llm"
)

// Rules 聚合一局对局的可调规则
type Rules struct {
	// 单条发言的最大字数，超出会被截断
	MaxDescriptionLength int
	// 投票阶段的并发上限
	VoteConcurrency int
	// 平票加赛的最大次数，之后按字典序兜底淘汰
	RevoteLimit int
	// 平票时是否先让平票者辩护再加赛
	TieDebate bool
	// 大于 0 时启用附加胜负规则：场上人数低于该值且仍有卧底即卧底胜
	SpyWinAliveCount int
	// 跳过开局前的提供商健康检查
	SkipHealthCheck bool
}

// Engine 驱动一局完整对局：持有会话、逐阶段执行处理器、
// 把过程产出写进事件队列。整局在单独的协程中自治运行。
type Engine struct {
	session *GameSession
	invoker llm.AgentInvoker
	rules   Rules
	queue   *EventQueue

	handler StageHandler

	aborted     atomic.Bool
	abortReason atomic.Value

	doneCh chan struct{}

	createdAt time.Time
}

func NewEngine(session *GameSession, invoker llm.AgentInvoker, rules Rules, queue *EventQueue) *Engine {
	if rules.VoteConcurrency <= 0 {
		rules.VoteConcurrency = 1
	}

	if rules.RevoteLimit <= 0 {
		rules.RevoteLimit = 1
	}

	e := &Engine{
		session:   session,
		invoker:   invoker,
		rules:     rules,
		queue:     queue,
		handler:   NewInitStageHandler(),
		doneCh:    make(chan struct{}),
		createdAt: time.Now(),
	}

	e.handler.SetOnSwitch(func(nextStage string) {
		e.session.Stage = nextStage
	})

	return e
}

// Run 阻塞运行到对局结束或被中止，调用方负责放进协程。
// 每个阶段处理器在 OnEnter 里完成本阶段全部工作，
// 通过 onSwitch 声明下一阶段，循环据此切换。
func (e *Engine) Run() {
	defer close(e.doneCh)
	defer e.queue.Close()

	zap.L().Info(
		"对局引擎启动",
		zap.String("session_id", e.session.ID),
		zap.Int("players", len(e.session.Players)),
	)

	e.handler.OnEnter(e)

	for e.session.Stage != e.handler.Stage() && !e.aborted.Load() {
		e.switchStage()
		e.handler.OnEnter(e)
	}

	if e.aborted.Load() && e.session.Stage != STAGE_END {
		e.session.Stage = STAGE_ABORTED

		reason, _ := e.abortReason.Load().(string)
		e.emit(EVENT_GAME_ABORTED, GameAbortedData{Reason: reason})

		zap.L().Info(
			"对局被中止",
			zap.String("session_id", e.session.ID),
			zap.String("reason", reason),
		)
	}

	zap.L().Info(
		"对局引擎退出",
		zap.String("session_id", e.session.ID),
		zap.String("stage", e.session.Stage),
	)
}

func (e *Engine) switchStage() {
	from := e.handler.Stage()

	// 执行当前 handler 的 OnExit
	e.handler.OnExit(e)

	// 根据新状态创建对应的 handler
	var newHandler StageHandler

	switch e.session.Stage {
	case STAGE_DESCRIBE:
		newHandler = NewDescribeStageHandler()
	case STAGE_VOTE:
		newHandler = NewVoteStageHandler()
	case STAGE_REVOTE:
		newHandler = NewRevoteStageHandler()
	case STAGE_ELIMINATE:
		newHandler = NewEliminateStageHandler()
	case STAGE_CHECK_WIN:
		newHandler = NewCheckWinStageHandler()
	case STAGE_END:
		newHandler = NewFinishStageHandler()
	default:
		zap.L().Error(
			"未知的游戏阶段",
			zap.String("stage", e.session.Stage),
		)
		return
	}

	newHandler.SetOnSwitch(func(nextStage string) {
		e.session.Stage = nextStage
	})

	e.handler = newHandler

	// 阶段工作开始前恰好发出一条切换事件
	e.emit(EVENT_PHASE_CHANGE, PhaseChangeData{From: from, To: e.session.Stage})
}

// Abort 置中止标记。进行中的模型调用不会被打断，
// 引擎在下一个检查点停下并补发终态事件。
func (e *Engine) Abort() {
	e.abortWith("收到外部中止指令")
}

func (e *Engine) abortWith(reason string) {
	if e.aborted.CompareAndSwap(false, true) {
		e.abortReason.Store(reason)
	}
}

// Done 在引擎协程退出后关闭
func (e *Engine) Done() <-chan struct{} {
	return e.doneCh
}

func (e *Engine) Events() <-chan Event {
	return e.queue.Events()
}

// Session 返回底层会话。运行期间由引擎协程独占，
// 外部只应在 Done 关闭后读取。
func (e *Engine) Session() *GameSession {
	return e.session
}

func (e *Engine) CreatedAt() time.Time {
	return e.createdAt
}

func (e *Engine) emit(eventType string, data any) {
	e.queue.Push(eventType, e.session.Round, data)
}

func (e *Engine) emitError(player, kind string, err error) {
	e.emit(EVENT_ERROR, ErrorData{
		Player:  player,
		Kind:    kind,
		Message: err.Error(),
	})
}
