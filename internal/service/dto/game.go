package dto

// 开局请求。词对、卧底数量和席位名单都可以省略，
// 省略时由服务端用词库与全部可用提供商补齐。
type StartGameRequest struct {
	CivilianWord string        `json:"civilian_word,omitempty"`
	SpyWord      string        `json:"spy_word,omitempty"`
	SpyCount     int           `json:"spy_count,omitempty"`
	Players      []SeatRequest `json:"players,omitempty"`
}

// SeatRequest 指定一个席位。Name 省略时用提供商名的大写形式
type SeatRequest struct {
	Name     string `json:"name,omitempty"`
	Provider string `json:"provider"`
}

type SeatInfo struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

type StartGameResponse struct {
	SessionID string     `json:"session_id"`
	Players   []SeatInfo `json:"players"`
	SpyCount  int        `json:"spy_count"`
}

type AbortGameResponse struct {
	SessionID string `json:"session_id"`
}

// SeatStatus 是观战视角的席位快照。
// 身份和词语只在被对应事件揭晓后才有值。
type SeatStatus struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Alive    bool   `json:"alive"`
	Role     string `json:"role,omitempty"`
	Word     string `json:"word,omitempty"`
}

type GameStatusResponse struct {
	Running      bool         `json:"running"`
	SessionID    string       `json:"session_id,omitempty"`
	Stage        string       `json:"stage,omitempty"`
	Round        int          `json:"round,omitempty"`
	CivilianWord string       `json:"civilian_word,omitempty"`
	SpyWord      string       `json:"spy_word,omitempty"`
	Players      []SeatStatus `json:"players,omitempty"`
	Winner       string       `json:"winner,omitempty"`
}
