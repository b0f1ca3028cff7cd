package game

import "who-is-spy-llm/internal/llm"

// 玩家身份
const (
	ROLE_CIVILIAN = "Civilian"
	ROLE_SPY      = "Spy"
)

func RoleDisplayName(role string) string {
	if role == ROLE_SPY {
		return "卧底"
	}

	return "平民"
}

// Player 是一名由大模型扮演的席位玩家
type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Role     string `json:"role"`
	Word     string `json:"word,omitempty"`
	Alive    bool   `json:"alive"`
}

// Agent 返回调用该玩家背后模型所需的标识
func (p *Player) Agent() llm.AgentConfig {
	return llm.AgentConfig{
		Name:     p.Name,
		Provider: p.Provider,
		Model:    p.Model,
	}
}

// Utterance 是描述阶段的一条公开发言
type Utterance struct {
	Speaker string `json:"speaker"`
	Content string `json:"content"`
}

// VoteRecord 是一张选票。调用失败与无效目标都落成弃票。
type VoteRecord struct {
	Voter     string `json:"voter"`
	Target    string `json:"target,omitempty"`
	Thinking  string `json:"thinking,omitempty"`
	Abstained bool   `json:"abstained,omitempty"`
}

// RoundRecord 是一轮的完整记录，供提示词拼装与归档使用
type RoundRecord struct {
	Number         int            `json:"number"`
	Utterances     []Utterance    `json:"utterances"`
	Votes          []VoteRecord   `json:"votes,omitempty"`
	Revotes        []VoteRecord   `json:"revotes,omitempty"`
	Counts         map[string]int `json:"counts,omitempty"`
	Eliminated     string         `json:"eliminated,omitempty"`
	EliminatedRole string         `json:"eliminated_role,omitempty"`
	LastWords      string         `json:"last_words,omitempty"`
}
