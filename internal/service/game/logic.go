package game

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"who-is-spy-llm/internal/llm"
)

// 对局依次经过 7 个阶段：
// 1. 初始化（Init）：健康检查，宣布开局
// 2. 描述（Describe）：存活玩家按固定顺序依次发言
// 3. 投票（Vote）：存活玩家并发投票，信号量限流
// 4. 加赛（Revote）：平票时在平票者之间重新投票
// 5. 淘汰（Eliminate）：出局者发表遗言并离场
// 6. 判定（CheckWin）：每次淘汰后立即判定胜负
// 7. 结束（End）：公布胜负与全部底牌
const (
	STAGE_INIT      = "Init"
	STAGE_DESCRIBE  = "Describe"
	STAGE_VOTE      = "Vote"
	STAGE_REVOTE    = "Revote"
	STAGE_ELIMINATE = "Eliminate"
	STAGE_CHECK_WIN = "CheckWin"
	STAGE_END       = "End"
	STAGE_ABORTED   = "Aborted"
)

// 描述失败时的兜底发言
const DEFAULT_DESCRIPTION = "这个东西很常见。"

type StageHandler interface {
	Stage() string

	OnEnter(e *Engine)
	OnExit(e *Engine)

	SetOnSwitch(func(nextStage string))
}

// 初始化阶段是对局最初始的阶段
type initStageHandler struct {
	onSwitch func(string)
}

func NewInitStageHandler() *initStageHandler {
	return &initStageHandler{}
}

func (ish *initStageHandler) Stage() string {
	return STAGE_INIT
}

func (ish *initStageHandler) OnEnter(e *Engine) {
	s := e.session

	for _, name := range s.Order {
		p := s.Players[name]
		zap.L().Debug(
			"身份分配",
			zap.String("session_id", s.ID),
			zap.String("player", name),
			zap.String("role", p.Role),
			zap.String("word", p.Word),
		)
	}

	if !e.rules.SkipHealthCheck {
		var failed []string

		for _, name := range s.Order {
			if e.aborted.Load() {
				return
			}

			p := s.Players[name]

			if err := e.invoker.HealthCheck(context.Background(), p.Agent()); err != nil {
				zap.L().Error(
					"提供商健康检查失败",
					zap.String("player", name),
					zap.String("provider", p.Provider),
					zap.Error(err),
				)
				e.emitError(name, llm.FAIL_AGENT_UNAVAILABLE, err)

				failed = append(failed, name)
			}
		}

		// 缺人无法重排身份，直接终止开局
		if len(failed) > 0 {
			e.abortWith(fmt.Sprintf("健康检查未通过: %s", strings.Join(failed, ", ")))
			return
		}
	}

	seats := make([]SeatData, 0, len(s.Order))
	for _, name := range s.Order {
		seats = append(seats, SeatData{
			Name:     name,
			Provider: s.Players[name].Provider,
		})
	}

	e.emit(EVENT_GAME_START, GameStartData{
		SessionID:    s.ID,
		Players:      seats,
		SpyCount:     s.CountSpies(),
		CivilianWord: s.CivilianWord,
		SpyWord:      s.SpyWord,
	})

	ish.onSwitch(STAGE_DESCRIBE)
}

func (ish *initStageHandler) OnExit(e *Engine) {}

func (ish *initStageHandler) SetOnSwitch(onSwitch func(string)) {
	ish.onSwitch = onSwitch
}

// 描述阶段处理器
type describeStageHandler struct {
	onSwitch func(string)
}

func NewDescribeStageHandler() *describeStageHandler {
	return &describeStageHandler{}
}

func (dsh *describeStageHandler) Stage() string {
	return STAGE_DESCRIBE
}

func (dsh *describeStageHandler) OnEnter(e *Engine) {
	s := e.session

	record := s.BeginRound()
	e.emit(EVENT_ROUND_START, RoundStartData{Round: record.Number})

	zap.L().Info(
		"新一轮开始",
		zap.String("session_id", s.ID),
		zap.Int("round", record.Number),
		zap.Strings("alive", s.AliveOrder()),
	)

	// 严格按发言顺序逐个调用，后手能看到先手的发言
	for _, name := range s.AliveOrder() {
		if e.aborted.Load() {
			return
		}

		p := s.Players[name]

		e.emit(EVENT_PLAYER_SPEAKING, PlayerSpeakingData{Player: name})

		result := e.invoker.Invoke(context.Background(), p.Agent(), BuildDescribePrompt(s, p), llm.KIND_DESCRIBE)

		content := result.Content
		thinking := result.Thinking

		if !result.OK() {
			zap.L().Warn(
				"玩家描述失败，使用兜底发言",
				zap.String("player", name),
				zap.Error(result.Failure.Err),
			)
			e.emitError(name, result.Failure.Kind, result.Failure.Err)

			content = DEFAULT_DESCRIPTION
			thinking = ""
		}

		content = truncateRunes(content, e.rules.MaxDescriptionLength)

		s.RecordDescription(name, content)
		e.emit(EVENT_DESCRIPTION, DescriptionData{
			Player:   name,
			Content:  content,
			Thinking: thinking,
		})
	}

	if e.aborted.Load() {
		return
	}

	dsh.onSwitch(STAGE_VOTE)
}

func (dsh *describeStageHandler) OnExit(e *Engine) {}

func (dsh *describeStageHandler) SetOnSwitch(onSwitch func(string)) {
	dsh.onSwitch = onSwitch
}

// 投票阶段处理器
type voteStageHandler struct {
	onSwitch func(string)
}

func NewVoteStageHandler() *voteStageHandler {
	return &voteStageHandler{}
}

func (vsh *voteStageHandler) Stage() string {
	return STAGE_VOTE
}

func (vsh *voteStageHandler) OnEnter(e *Engine) {
	s := e.session
	alive := s.AliveOrder()

	ballots := e.collectBallots(alive, nil, func(p *Player) llm.Prompt {
		return BuildVotePrompt(s, p, excludeName(alive, p.Name))
	})

	record := s.CurrentRound()
	record.Votes = ballots

	result := TallyVotes(ballots, alive)
	record.Counts = result.Counts

	e.emit(EVENT_VOTE_RESULT, VoteResultData{
		Counts:     result.Counts,
		Eliminated: result.Eliminated,
		Tied:       result.Tied,
		Abstained:  result.Abstained,
	})

	zap.L().Info(
		"计票完成",
		zap.String("session_id", s.ID),
		zap.Any("counts", result.Counts),
		zap.String("eliminated", result.Eliminated),
	)

	if e.aborted.Load() {
		return
	}

	if result.Eliminated != "" {
		s.PendingElimination = result.Eliminated
		vsh.onSwitch(STAGE_ELIMINATE)
		return
	}

	s.TiedCandidates = result.Tied

	zap.L().Info(
		"出现平票",
		zap.String("session_id", s.ID),
		zap.Strings("tied", result.Tied),
	)

	vsh.onSwitch(STAGE_REVOTE)
}

func (vsh *voteStageHandler) OnExit(e *Engine) {}

func (vsh *voteStageHandler) SetOnSwitch(onSwitch func(string)) {
	vsh.onSwitch = onSwitch
}

// 加赛阶段处理器
type revoteStageHandler struct {
	onSwitch func(string)
}

func NewRevoteStageHandler() *revoteStageHandler {
	return &revoteStageHandler{}
}

func (rsh *revoteStageHandler) Stage() string {
	return STAGE_REVOTE
}

func (rsh *revoteStageHandler) OnEnter(e *Engine) {
	s := e.session

	tied := append([]string{}, s.TiedCandidates...)

	for attempt := 1; attempt <= e.rules.RevoteLimit; attempt++ {
		if e.aborted.Load() {
			return
		}

		debate := ""
		if e.rules.TieDebate {
			debate = e.runDebate(tied)
		}

		// 平票者本人没有投票权
		voters := excludeNames(s.AliveOrder(), tied)
		if len(voters) == 0 {
			break
		}

		ballots := e.collectBallots(voters, tied, func(p *Player) llm.Prompt {
			return BuildRevotePrompt(s, p, tied, debate)
		})

		record := s.CurrentRound()
		record.Revotes = append(record.Revotes, ballots...)

		result := TallyVotes(ballots, tied)

		e.emit(EVENT_VOTE_RESULT, VoteResultData{
			Counts:     result.Counts,
			Eliminated: result.Eliminated,
			Tied:       result.Tied,
			Abstained:  result.Abstained,
			Revote:     true,
			Attempt:    attempt,
		})

		if result.Eliminated != "" {
			s.PendingElimination = result.Eliminated
			rsh.onSwitch(STAGE_ELIMINATE)
			return
		}

		tied = result.Tied

		zap.L().Info(
			"加赛仍然平票",
			zap.String("session_id", s.ID),
			zap.Strings("tied", tied),
			zap.Int("attempt", attempt),
		)
	}

	if e.aborted.Load() {
		return
	}

	// 加赛到达上限，按字典序淘汰最小者保证推进
	sort.Strings(tied)
	s.PendingElimination = tied[0]

	zap.L().Warn(
		"加赛达到上限，按字典序兜底淘汰",
		zap.String("session_id", s.ID),
		zap.String("player", tied[0]),
	)

	rsh.onSwitch(STAGE_ELIMINATE)
}

func (rsh *revoteStageHandler) OnExit(e *Engine) {}

func (rsh *revoteStageHandler) SetOnSwitch(onSwitch func(string)) {
	rsh.onSwitch = onSwitch
}

// 淘汰阶段处理器
type eliminateStageHandler struct {
	onSwitch func(string)
}

func NewEliminateStageHandler() *eliminateStageHandler {
	return &eliminateStageHandler{}
}

func (esh *eliminateStageHandler) Stage() string {
	return STAGE_ELIMINATE
}

func (esh *eliminateStageHandler) OnEnter(e *Engine) {
	s := e.session

	name := s.PendingElimination

	p := s.Players[name]
	if p == nil {
		zap.L().Error(
			"待淘汰玩家不存在",
			zap.String("session_id", s.ID),
			zap.String("player", name),
		)
		esh.onSwitch(STAGE_CHECK_WIN)
		return
	}

	p.Alive = false

	record := s.CurrentRound()
	record.Eliminated = name
	record.EliminatedRole = p.Role

	// 遗言拿不到就算了，不影响流程
	lastWords := ""

	if !e.aborted.Load() {
		result := e.invoker.Invoke(context.Background(), p.Agent(), BuildLastWordsPrompt(p), llm.KIND_LAST_WORDS)
		if result.OK() {
			lastWords = result.Content
		} else {
			zap.L().Warn(
				"遗言获取失败",
				zap.String("player", name),
				zap.Error(result.Failure.Err),
			)
			e.emitError(name, result.Failure.Kind, result.Failure.Err)
		}
	}

	record.LastWords = lastWords

	zap.L().Info(
		"玩家被淘汰",
		zap.String("session_id", s.ID),
		zap.String("player", name),
		zap.String("role", RoleDisplayName(p.Role)),
	)

	e.emit(EVENT_ELIMINATION, EliminationData{
		Player:    name,
		Role:      p.Role,
		Word:      p.Word,
		LastWords: lastWords,
	})

	s.PendingElimination = ""
	s.TiedCandidates = nil

	esh.onSwitch(STAGE_CHECK_WIN)
}

func (esh *eliminateStageHandler) OnExit(e *Engine) {}

func (esh *eliminateStageHandler) SetOnSwitch(onSwitch func(string)) {
	esh.onSwitch = onSwitch
}

// 判定阶段处理器
type checkWinStageHandler struct {
	onSwitch func(string)
}

func NewCheckWinStageHandler() *checkWinStageHandler {
	return &checkWinStageHandler{}
}

func (cwh *checkWinStageHandler) Stage() string {
	return STAGE_CHECK_WIN
}

func (cwh *checkWinStageHandler) OnEnter(e *Engine) {
	s := e.session

	zap.L().Debug(
		"存活情况",
		zap.String("session_id", s.ID),
		zap.Int("civilians", s.CountAliveCivilians()),
		zap.Int("spies", s.CountAliveSpies()),
	)

	winner := s.CheckWin(e.rules.SpyWinAliveCount)
	if winner != "" {
		s.Winner = winner
		cwh.onSwitch(STAGE_END)
		return
	}

	cwh.onSwitch(STAGE_DESCRIBE)
}

func (cwh *checkWinStageHandler) OnExit(e *Engine) {}

func (cwh *checkWinStageHandler) SetOnSwitch(onSwitch func(string)) {
	cwh.onSwitch = onSwitch
}

// 结束阶段处理器
type finishStageHandler struct {
	onSwitch func(string)
}

func NewFinishStageHandler() *finishStageHandler {
	return &finishStageHandler{}
}

func (fsh *finishStageHandler) Stage() string {
	return STAGE_END
}

func (fsh *finishStageHandler) OnEnter(e *Engine) {
	s := e.session

	reveal := make([]PlayerReveal, 0, len(s.Order))
	for _, name := range s.Order {
		p := s.Players[name]
		reveal = append(reveal, PlayerReveal{
			Name:  name,
			Role:  p.Role,
			Word:  p.Word,
			Alive: p.Alive,
		})
	}

	e.emit(EVENT_GAME_END, GameEndData{
		Winner:       s.Winner,
		Rounds:       s.Round,
		CivilianWord: s.CivilianWord,
		SpyWord:      s.SpyWord,
		Players:      reveal,
		Survivors:    s.AliveOrder(),
	})

	zap.L().Info(
		"游戏结束",
		zap.String("session_id", s.ID),
		zap.String("winner", RoleDisplayName(s.Winner)+"方"),
		zap.Int("rounds", s.Round),
		zap.Strings("spies", s.SpyNames()),
	)
}

func (fsh *finishStageHandler) OnExit(e *Engine) {}

func (fsh *finishStageHandler) SetOnSwitch(onSwitch func(string)) {
	fsh.onSwitch = onSwitch
}

// collectBallots 并发收集 voters 的选票，信号量限流。
// 选票的校验、落账和事件发出都按 voters 顺序串行做，
// 事件顺序因此与并发调度无关。
func (e *Engine) collectBallots(voters []string, allowed []string, buildPrompt func(*Player) llm.Prompt) []VoteRecord {
	s := e.session

	sem := make(chan struct{}, e.rules.VoteConcurrency)
	results := make([]llm.InvocationResult, len(voters))

	var wg sync.WaitGroup

	for i, name := range voters {
		wg.Add(1)

		go func(idx int, p *Player) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = e.invoker.Invoke(context.Background(), p.Agent(), buildPrompt(p), llm.KIND_VOTE)
		}(i, s.Players[name])
	}

	wg.Wait()

	ballots := make([]VoteRecord, 0, len(voters))

	for i, name := range voters {
		result := results[i]

		ballot := VoteRecord{Voter: name, Thinking: result.Thinking}

		if !result.OK() {
			zap.L().Warn(
				"玩家投票失败，记为弃票",
				zap.String("player", name),
				zap.Error(result.Failure.Err),
			)
			e.emitError(name, result.Failure.Kind, result.Failure.Err)

			ballot.Abstained = true
		} else if err := s.ValidateVote(name, result.Content, allowed); err != nil {
			zap.L().Warn(
				"玩家投出无效票，记为弃票",
				zap.String("player", name),
				zap.String("target", result.Content),
				zap.Error(err),
			)
			e.emitError(name, FAIL_INVALID_VOTE, err)

			ballot.Abstained = true
		} else {
			ballot.Target = result.Content
		}

		ballots = append(ballots, ballot)

		e.emit(EVENT_VOTE, VoteData{
			Voter:     ballot.Voter,
			Target:    ballot.Target,
			Thinking:  ballot.Thinking,
			Abstained: ballot.Abstained,
		})
	}

	return ballots
}

// runDebate 依次收集平票者的辩护并作为公开发言广播，
// 返回拼好的辩护全文供加赛提示词引用
func (e *Engine) runDebate(tied []string) string {
	s := e.session

	statements := make([]string, 0, len(tied))

	for _, name := range tied {
		if e.aborted.Load() {
			break
		}

		p := s.Players[name]

		prompt := BuildDebatePrompt(s, p, excludeName(tied, name), e.rules.MaxDescriptionLength)
		result := e.invoker.Invoke(context.Background(), p.Agent(), prompt, llm.KIND_DEBATE)

		statement := result.Content

		if !result.OK() {
			zap.L().Warn(
				"玩家辩护失败",
				zap.String("player", name),
				zap.Error(result.Failure.Err),
			)
			e.emitError(name, result.Failure.Kind, result.Failure.Err)

			statement = "(辩护失败)"
		}

		statement = truncateRunes(statement, e.rules.MaxDescriptionLength)

		e.emit(EVENT_DESCRIPTION, DescriptionData{
			Player:  name,
			Content: "[辩护] " + statement,
		})

		statements = append(statements, fmt.Sprintf("【%s】: %s", name, statement))
	}

	return strings.Join(statements, "\n\n")
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}

	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit])
}

func excludeName(names []string, exclude string) []string {
	out := make([]string, 0, len(names))

	for _, n := range names {
		if n != exclude {
			out = append(out, n)
		}
	}

	return out
}

func excludeNames(names []string, excludes []string) []string {
	out := make([]string, 0, len(names))

	for _, n := range names {
		found := false

		for _, ex := range excludes {
			if n == ex {
				found = true
				break
			}
		}

		if !found {
			out = append(out, n)
		}
	}

	return out
}
