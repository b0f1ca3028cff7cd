package game

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"who-is-spy-llm/internal/llm"
)

// SessionParams 描述一局对局的全部开局要素
type SessionParams struct {
	Agents       []llm.AgentConfig
	CivilianWord string
	SpyWord      string
	// 可选：提供多个卧底词变体时，多名卧底依次拿到不同的词
	SpyWords []string
	SpyCount int
}

// GameSession 承载一局对局的全部状态。
// 引擎运行期间由引擎协程独占访问，不加锁。
type GameSession struct {
	ID    string `json:"id"`
	Stage string `json:"stage"`
	Round int    `json:"round"`

	CivilianWord string `json:"civilian_word"`
	SpyWord      string `json:"spy_word"`

	// 以玩家名为键，名字在一局内唯一
	Players map[string]*Player `json:"players"`
	// 发言顺序，开局洗牌后整局固定
	Order []string `json:"order"`

	Rounds []*RoundRecord `json:"rounds"`

	// 平票加赛的中间状态
	TiedCandidates     []string `json:"-"`
	PendingElimination string   `json:"-"`

	Winner string `json:"winner,omitempty"`
}

// NewGameSession 校验开局参数并完成角色分配与发言顺序洗牌。
// 参数不合法时返回错误，不会产生半初始化的会话。
func NewGameSession(params SessionParams) (*GameSession, error) {
	if len(params.Agents) < 3 {
		return nil, fmt.Errorf("至少需要 3 名玩家，当前 %d 名", len(params.Agents))
	}

	if params.SpyCount < 1 {
		return nil, fmt.Errorf("卧底数量至少为 1")
	}

	if params.SpyCount*2 >= len(params.Agents) {
		return nil, fmt.Errorf("卧底数量 %d 过多，必须少于玩家数的一半", params.SpyCount)
	}

	if params.CivilianWord == "" || params.SpyWord == "" {
		return nil, fmt.Errorf("平民词和卧底词不能为空")
	}

	if params.CivilianWord == params.SpyWord {
		return nil, fmt.Errorf("平民词和卧底词不能相同")
	}

	for _, w := range params.SpyWords {
		if w == "" || w == params.CivilianWord {
			return nil, fmt.Errorf("卧底词变体不合法: %q", w)
		}
	}

	players := make(map[string]*Player, len(params.Agents))
	names := make([]string, 0, len(params.Agents))

	for _, agent := range params.Agents {
		if agent.Name == "" {
			return nil, fmt.Errorf("玩家名不能为空")
		}

		if _, exists := players[agent.Name]; exists {
			return nil, fmt.Errorf("玩家名重复: %s", agent.Name)
		}

		players[agent.Name] = &Player{
			ID:       shortID(),
			Name:     agent.Name,
			Provider: agent.Provider,
			Model:    agent.Model,
			Role:     ROLE_CIVILIAN,
			Word:     params.CivilianWord,
			Alive:    true,
		}

		names = append(names, agent.Name)
	}

	// 随机抽取卧底
	shuffled := append([]string{}, names...)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	spyWords := params.SpyWords
	if len(spyWords) == 0 {
		spyWords = []string{params.SpyWord}
	}

	for i := 0; i < params.SpyCount; i++ {
		p := players[shuffled[i]]
		p.Role = ROLE_SPY
		p.Word = spyWords[i%len(spyWords)]
	}

	// 发言顺序独立洗牌
	order := append([]string{}, names...)
	rand.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})

	return &GameSession{
		ID:           GenID(),
		Stage:        STAGE_INIT,
		CivilianWord: params.CivilianWord,
		SpyWord:      params.SpyWord,
		Players:      players,
		Order:        order,
	}, nil
}

// AliveOrder 返回按发言顺序排列的存活玩家名
func (s *GameSession) AliveOrder() []string {
	alive := make([]string, 0, len(s.Order))

	for _, name := range s.Order {
		if s.Players[name].Alive {
			alive = append(alive, name)
		}
	}

	return alive
}

func (s *GameSession) CountAliveSpies() int {
	n := 0

	for _, p := range s.Players {
		if p.Alive && p.Role == ROLE_SPY {
			n++
		}
	}

	return n
}

func (s *GameSession) CountAliveCivilians() int {
	n := 0

	for _, p := range s.Players {
		if p.Alive && p.Role == ROLE_CIVILIAN {
			n++
		}
	}

	return n
}

func (s *GameSession) CountSpies() int {
	n := 0

	for _, p := range s.Players {
		if p.Role == ROLE_SPY {
			n++
		}
	}

	return n
}

// SpyNames 按发言顺序返回全部卧底名，终局复盘用
func (s *GameSession) SpyNames() []string {
	names := make([]string, 0, 2)

	for _, name := range s.Order {
		if s.Players[name].Role == ROLE_SPY {
			names = append(names, name)
		}
	}

	return names
}

// BeginRound 递增轮次并开启一条新的轮次记录
func (s *GameSession) BeginRound() *RoundRecord {
	s.Round++

	record := &RoundRecord{Number: s.Round}
	s.Rounds = append(s.Rounds, record)

	return record
}

func (s *GameSession) CurrentRound() *RoundRecord {
	if len(s.Rounds) == 0 {
		return nil
	}

	return s.Rounds[len(s.Rounds)-1]
}

func (s *GameSession) pastRounds() []*RoundRecord {
	if len(s.Rounds) == 0 {
		return nil
	}

	return s.Rounds[:len(s.Rounds)-1]
}

func (s *GameSession) RecordDescription(speaker, content string) {
	record := s.CurrentRound()
	if record == nil {
		return
	}

	record.Utterances = append(record.Utterances, Utterance{
		Speaker: speaker,
		Content: content,
	})
}

// ValidateVote 做选票入账校验。allowed 非空时目标还必须在其中
// （加赛只允许投给平票者）。
func (s *GameSession) ValidateVote(voter, target string, allowed []string) error {
	if target == "" {
		return fmt.Errorf("投票目标为空")
	}

	if target == voter {
		return fmt.Errorf("不能投给自己")
	}

	p, ok := s.Players[target]
	if !ok {
		return fmt.Errorf("投票目标不存在: %s", target)
	}

	if !p.Alive {
		return fmt.Errorf("投票目标已被淘汰: %s", target)
	}

	if len(allowed) > 0 && !slices.Contains(allowed, target) {
		return fmt.Errorf("投票目标不在候选人之列: %s", target)
	}

	return nil
}

// HistoryText 把已结束轮次（含淘汰结果）与当前轮已有的发言
// 拼成提示词用的聊天记录
func (s *GameSession) HistoryText() string {
	var sb strings.Builder

	for _, r := range s.pastRounds() {
		fmt.Fprintf(&sb, "\n=== 第 %d 轮 ===\n", r.Number)

		for _, u := range r.Utterances {
			fmt.Fprintf(&sb, "【%s】: %s\n", u.Speaker, u.Content)
		}

		if r.Eliminated != "" {
			fmt.Fprintf(&sb, "\n🔴 本轮淘汰: %s (%s)\n", r.Eliminated, RoleDisplayName(r.EliminatedRole))
		}
	}

	history := strings.TrimSpace(sb.String())
	if history == "" {
		history = "(这是第一轮)"
	}

	if current := s.CurrentRoundText(); current != "" {
		history += fmt.Sprintf("\n\n=== 第 %d 轮（进行中）===\n%s", s.Round, current)
	}

	return history
}

// CurrentRoundText 只含当前轮已经说出口的发言
func (s *GameSession) CurrentRoundText() string {
	record := s.CurrentRound()
	if record == nil {
		return ""
	}

	lines := make([]string, 0, len(record.Utterances))

	for _, u := range record.Utterances {
		lines = append(lines, fmt.Sprintf("【%s】: %s", u.Speaker, u.Content))
	}

	return strings.Join(lines, "\n")
}

// CheckWin 依据存活对比判定胜负，未分出时返回空串。
// spyWinAliveCount 大于 0 时附加规则：场上总人数低于该值
// 且仍有卧底存活，卧底即胜。
func (s *GameSession) CheckWin(spyWinAliveCount int) string {
	spies := s.CountAliveSpies()
	civilians := s.CountAliveCivilians()

	if spies == 0 {
		return ROLE_CIVILIAN
	}

	if spies >= civilians {
		return ROLE_SPY
	}

	if spyWinAliveCount > 0 && spies+civilians < spyWinAliveCount {
		return ROLE_SPY
	}

	return ""
}
