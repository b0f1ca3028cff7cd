package game

import (
	"time"

	"go.uber.org/zap"
)

// 事件类型
const (
	EVENT_GAME_START      = "GameStart"
	EVENT_ROUND_START     = "RoundStart"
	EVENT_PHASE_CHANGE    = "PhaseChange"
	EVENT_PLAYER_SPEAKING = "PlayerSpeaking"
	EVENT_DESCRIPTION     = "Description"
	EVENT_VOTE            = "Vote"
	EVENT_VOTE_RESULT     = "VoteResult"
	EVENT_ELIMINATION     = "Elimination"
	EVENT_GAME_END        = "GameEnd"
	EVENT_GAME_ABORTED    = "GameAborted"
	EVENT_ERROR           = "Error"
)

// 无效选票的错误类别，与 llm 包的调用失败类别一起出现在 Error 事件里
const FAIL_INVALID_VOTE = "InvalidVote"

// Event 是引擎对外的唯一产物。Seq 单调递增，回放时按 Seq 排序。
type Event struct {
	Seq       int64     `json:"seq"`
	Type      string    `json:"type"`
	Round     int       `json:"round"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

type SeatData struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// 开局事件公布词对供观战方使用，但不公布任何人的身份，
// 身份在淘汰与终局事件里逐步揭晓
type GameStartData struct {
	SessionID    string     `json:"session_id"`
	Players      []SeatData `json:"players"`
	SpyCount     int        `json:"spy_count"`
	CivilianWord string     `json:"civilian_word"`
	SpyWord      string     `json:"spy_word"`
}

type RoundStartData struct {
	Round int `json:"round"`
}

type PhaseChangeData struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type PlayerSpeakingData struct {
	Player string `json:"player"`
}

type DescriptionData struct {
	Player   string `json:"player"`
	Content  string `json:"content"`
	Thinking string `json:"thinking,omitempty"`
}

type VoteData struct {
	Voter     string `json:"voter"`
	Target    string `json:"target,omitempty"`
	Thinking  string `json:"thinking,omitempty"`
	Abstained bool   `json:"abstained,omitempty"`
}

type VoteResultData struct {
	Counts     map[string]int `json:"counts"`
	Eliminated string         `json:"eliminated,omitempty"`
	Tied       []string       `json:"tied,omitempty"`
	Abstained  []string       `json:"abstained,omitempty"`
	Revote     bool           `json:"revote,omitempty"`
	Attempt    int            `json:"attempt,omitempty"`
}

type EliminationData struct {
	Player    string `json:"player"`
	Role      string `json:"role"`
	Word      string `json:"word"`
	LastWords string `json:"last_words,omitempty"`
}

type PlayerReveal struct {
	Name  string `json:"name"`
	Role  string `json:"role"`
	Word  string `json:"word"`
	Alive bool   `json:"alive"`
}

type GameEndData struct {
	Winner       string         `json:"winner"`
	Rounds       int            `json:"rounds"`
	CivilianWord string         `json:"civilian_word"`
	SpyWord      string         `json:"spy_word"`
	Players      []PlayerReveal `json:"players"`
	Survivors    []string       `json:"survivors"`
}

type GameAbortedData struct {
	Reason string `json:"reason"`
}

type ErrorData struct {
	Player  string `json:"player,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// 队列满时的两种策略
const (
	QUEUE_BLOCK       = "Block"
	QUEUE_DROP_OLDEST = "DropOldest"
)

// EventQueue 是引擎与消费方之间的有界缓冲。
// 生产方只有引擎协程一个，Seq 不需要加锁。
type EventQueue struct {
	ch     chan Event
	policy string
	seq    int64
}

func NewEventQueue(size int, policy string) *EventQueue {
	if size <= 0 {
		size = 256
	}

	return &EventQueue{
		ch:     make(chan Event, size),
		policy: policy,
	}
}

func (q *EventQueue) Push(eventType string, round int, data any) Event {
	q.seq++

	ev := Event{
		Seq:       q.seq,
		Type:      eventType,
		Round:     round,
		Timestamp: time.Now(),
		Data:      data,
	}

	if q.policy == QUEUE_DROP_OLDEST {
		for {
			select {
			case q.ch <- ev:
				return ev
			default:
			}

			// 腾出一个位置再重试入队
			select {
			case dropped := <-q.ch:
				zap.L().Warn("事件队列已满，丢弃最旧事件",
					zap.Int64("dropped_seq", dropped.Seq),
					zap.String("dropped_type", dropped.Type))
			default:
			}
		}
	}

	q.ch <- ev

	return ev
}

func (q *EventQueue) Events() <-chan Event {
	return q.ch
}

// Close 由生产方在最后一个事件之后调用
func (q *EventQueue) Close() {
	close(q.ch)
}
