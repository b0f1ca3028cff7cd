package service

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"who-is-spy-llm/internal/archive"
	"who-is-spy-llm/internal/config"
	"who-is-spy-llm/internal/llm"
	"who-is-spy-llm/internal/service/dto"
	"who-is-spy-llm/internal/service/game"
	"who-is-spy-llm/internal/words"
)

var (
	ErrGameRunning = errors.New("当前有对局正在进行，请先中止")
	ErrNoGame      = errors.New("没有进行中的对局")
)

// 观战者缓冲大小，写满说明消费方跟不上，直接丢事件
const WATCHER_BUFFER = 64

// 落幕对局在内存里的保留时长，超时后由清理协程回收
const SESSION_RETENTION = 30 * time.Minute

// ArenaService 是对局的唯一入口：同一时刻最多一局在跑，
// 新对局只能在上一局落幕之后开启。
type ArenaService struct {
	state *arenaState
}

type arenaState struct {
	mu sync.RWMutex

	invoker    llm.AgentInvoker
	roster     []llm.AgentConfig
	byProvider map[string]llm.AgentConfig
	wordStore  *words.Store
	gameCfg    config.GameConfig
	archiver   *archive.Archiver

	sessionID  string
	current    *game.Engine
	history    []game.Event
	status     *statusView
	watchers   map[string]chan game.Event
	finishedAt time.Time

	cleanUpDone chan struct{}
}

func NewArenaService(
	invoker llm.AgentInvoker,
	roster []llm.AgentConfig,
	wordStore *words.Store,
	gameCfg config.GameConfig,
	archiver *archive.Archiver,
) *ArenaService {
	byProvider := make(map[string]llm.AgentConfig, len(roster))
	for _, agent := range roster {
		byProvider[agent.Provider] = agent
	}

	state := &arenaState{
		invoker:     invoker,
		roster:      roster,
		byProvider:  byProvider,
		wordStore:   wordStore,
		gameCfg:     gameCfg,
		archiver:    archiver,
		watchers:    make(map[string]chan game.Event),
		cleanUpDone: make(chan struct{}),
	}

	// 启动一个 goroutine 定期回收过期的落幕对局
	go startCleanupLoop(state)

	return &ArenaService{state: state}
}

func startCleanupLoop(state *arenaState) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-state.cleanUpDone:
			return

		case <-ticker.C:
			state.mu.Lock()

			expired := state.current != nil && isEngineSettled(state.current) &&
				!state.finishedAt.IsZero() && time.Since(state.finishedAt) > SESSION_RETENTION

			if expired {
				zap.S().Infof("对局 %s 超过保留期，回收内存记录", state.sessionID)

				state.current = nil
				state.sessionID = ""
				state.history = nil
				state.status = nil
				state.finishedAt = time.Time{}
			}

			state.mu.Unlock()
		}
	}
}

func (as *ArenaService) Close() {
	close(as.state.cleanUpDone)

	as.state.mu.RLock()
	current := as.state.current
	as.state.mu.RUnlock()

	if current != nil && !isEngineSettled(current) {
		current.Abort()
	}
}

// StartGame 开一局新对局。上一局还在进行时拒绝；
// 参数不合法时返回错误，不会留下半启动的对局。
func (as *ArenaService) StartGame(req dto.StartGameRequest) (dto.StartGameResponse, error) {
	state := as.state

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.current != nil && !isEngineSettled(state.current) {
		return dto.StartGameResponse{}, ErrGameRunning
	}

	agents, err := state.resolveRoster(req.Players)
	if err != nil {
		return dto.StartGameResponse{}, err
	}

	civilianWord, spyWord := req.CivilianWord, req.SpyWord
	if civilianWord == "" || spyWord == "" {
		pair := state.wordStore.RandomPair()
		civilianWord, spyWord = pair.Civilian, pair.Spy
	}

	var spyWords []string
	if state.gameCfg.DistinctSpyWords {
		spyWords = state.wordStore.SpyVariants(civilianWord, spyWord)
	}

	spyCount := req.SpyCount
	if spyCount <= 0 {
		spyCount = state.gameCfg.SpyCount
	}

	sess, err := game.NewGameSession(game.SessionParams{
		Agents:       agents,
		CivilianWord: civilianWord,
		SpyWord:      spyWord,
		SpyWords:     spyWords,
		SpyCount:     spyCount,
	})
	if err != nil {
		return dto.StartGameResponse{}, err
	}

	queue := game.NewEventQueue(state.gameCfg.EventQueueSize, queuePolicy(state.gameCfg.EventQueuePolicy))

	engine := game.NewEngine(sess, state.invoker, game.Rules{
		MaxDescriptionLength: state.gameCfg.MaxDescriptionLength,
		VoteConcurrency:      state.gameCfg.VoteConcurrency,
		RevoteLimit:          state.gameCfg.RevoteLimit,
		TieDebate:            state.gameCfg.TieDebate,
		SpyWinAliveCount:     state.gameCfg.SpyWinAliveCount,
		SkipHealthCheck:      state.gameCfg.SkipHealthCheck,
	}, queue)

	// 座席与状态视图必须在引擎起跑前取好
	seats := make([]dto.SeatInfo, 0, len(sess.Order))
	for _, name := range sess.Order {
		p := sess.Players[name]
		seats = append(seats, dto.SeatInfo{Name: p.Name, Provider: p.Provider})
	}

	state.current = engine
	state.sessionID = sess.ID
	state.history = nil
	state.status = newStatusView(sess)
	state.finishedAt = time.Time{}

	go engine.Run()
	go as.drain(engine)

	zap.S().Infof("对局 %s 启动：%d 名玩家，%d 名卧底", sess.ID, len(agents), spyCount)

	return dto.StartGameResponse{
		SessionID: sess.ID,
		Players:   seats,
		SpyCount:  spyCount,
	}, nil
}

// Abort 请求中止当前对局。进行中的模型调用会自然结束，
// 引擎在下一个检查点停下并补发终态事件。
func (as *ArenaService) Abort() (dto.AbortGameResponse, error) {
	state := as.state

	state.mu.RLock()
	current := state.current
	sessionID := state.sessionID
	state.mu.RUnlock()

	if current == nil || isEngineSettled(current) {
		return dto.AbortGameResponse{}, ErrNoGame
	}

	current.Abort()

	zap.S().Infof("对局 %s 收到中止请求", sessionID)

	return dto.AbortGameResponse{SessionID: sessionID}, nil
}

// Status 返回观战视角的即时快照，由事件流折叠而来
func (as *ArenaService) Status() dto.GameStatusResponse {
	state := as.state

	state.mu.RLock()
	defer state.mu.RUnlock()

	if state.status == nil {
		return dto.GameStatusResponse{Running: false}
	}

	resp := state.status.snapshot()
	resp.Running = state.current != nil && !isEngineSettled(state.current)

	return resp
}

// Watch 订阅事件流。返回当前对局已发生事件的快照、
// 实时事件通道和退订函数。快照和订阅在同一临界区内完成，
// 两段拼起来恰好是不重不漏的完整序列。
func (as *ArenaService) Watch() ([]game.Event, <-chan game.Event, func()) {
	state := as.state

	state.mu.Lock()
	defer state.mu.Unlock()

	id := uuid.New().String()[:8]

	ch := make(chan game.Event, WATCHER_BUFFER)
	state.watchers[id] = ch

	snapshot := append([]game.Event{}, state.history...)

	cancel := func() {
		state.mu.Lock()
		defer state.mu.Unlock()

		if c, ok := state.watchers[id]; ok {
			delete(state.watchers, id)
			close(c)
		}
	}

	zap.S().Debugf("观战者 %s 接入，补播 %d 条事件", id, len(snapshot))

	return snapshot, ch, cancel
}

// drain 是事件队列的唯一消费者：落历史、折叠状态视图、
// 分发给观战者，对局落幕后负责归档。
func (as *ArenaService) drain(engine *game.Engine) {
	state := as.state

	var archived []game.Event

	for ev := range engine.Events() {
		archived = append(archived, ev)

		state.mu.Lock()

		state.history = append(state.history, ev)

		if state.status != nil {
			state.status.apply(ev)
		}

		for id, ch := range state.watchers {
			select {
			case ch <- ev:
			default:
				zap.S().Debugf("观战者 %s 缓冲已满，丢弃事件 %d", id, ev.Seq)
			}
		}

		state.mu.Unlock()
	}

	// 队列关闭只说明事件发完了，等引擎协程退出后才能读会话
	<-engine.Done()

	state.mu.Lock()
	if state.current == engine {
		state.finishedAt = time.Now()
	}
	archiver := state.archiver
	state.mu.Unlock()

	sess := engine.Session()

	zap.S().Infof("对局 %s 落幕：stage=%s winner=%s", sess.ID, sess.Stage, sess.Winner)

	if archiver == nil {
		return
	}

	if err := archiver.Save(sess, archived); err != nil {
		zap.S().Errorf("对局 %s 归档失败: %v", sess.ID, err)
	}
}

// resolveRoster 把请求里的席位映射成可调用的座席；
// 名单为空时整编全部可用提供商。
func (state *arenaState) resolveRoster(seats []dto.SeatRequest) ([]llm.AgentConfig, error) {
	if len(seats) == 0 {
		if len(state.roster) == 0 {
			return nil, errors.New("没有可用的模型提供商，请检查 .env 配置")
		}

		return append([]llm.AgentConfig{}, state.roster...), nil
	}

	agents := make([]llm.AgentConfig, 0, len(seats))

	for _, seat := range seats {
		base, ok := state.byProvider[seat.Provider]
		if !ok {
			return nil, fmt.Errorf("未知的提供商: %s", seat.Provider)
		}

		name := seat.Name
		if name == "" {
			name = strings.ToUpper(seat.Provider)
		}

		agents = append(agents, llm.AgentConfig{
			Name:     name,
			Provider: base.Provider,
			Model:    base.Model,
		})
	}

	return agents, nil
}
