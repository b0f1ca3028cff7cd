package service

import (
	"who-is-spy-llm/internal/service/dto"
	"who-is-spy-llm/internal/service/game"
)

// isEngineSettled 判断引擎协程是否已经退出
func isEngineSettled(engine *game.Engine) bool {
	select {
	case <-engine.Done():
		return true
	default:
		return false
	}
}

// queuePolicy 校验配置里的队列策略，不认识的值回落到阻塞模式
func queuePolicy(policy string) string {
	if policy == game.QUEUE_DROP_OLDEST {
		return game.QUEUE_DROP_OLDEST
	}

	return game.QUEUE_BLOCK
}

// statusView 是由事件流折叠出来的观战快照。
// 只收录事件里公开过的信息，身份和词语在揭晓前一直为空。
type statusView struct {
	sessionID    string
	stage        string
	round        int
	civilianWord string
	spyWord      string
	winner       string
	order        []string
	seats        map[string]*dto.SeatStatus
}

func newStatusView(sess *game.GameSession) *statusView {
	view := &statusView{
		sessionID: sess.ID,
		stage:     game.STAGE_INIT,
		order:     append([]string{}, sess.Order...),
		seats:     make(map[string]*dto.SeatStatus, len(sess.Order)),
	}

	for _, name := range sess.Order {
		p := sess.Players[name]
		view.seats[name] = &dto.SeatStatus{
			Name:     p.Name,
			Provider: p.Provider,
			Alive:    true,
		}
	}

	return view
}

func (view *statusView) apply(ev game.Event) {
	switch data := ev.Data.(type) {
	case game.GameStartData:
		view.civilianWord = data.CivilianWord
		view.spyWord = data.SpyWord

	case game.RoundStartData:
		view.round = data.Round

	case game.PhaseChangeData:
		view.stage = data.To

	case game.EliminationData:
		if seat := view.seats[data.Player]; seat != nil {
			seat.Alive = false
			seat.Role = data.Role
			seat.Word = data.Word
		}

	case game.GameEndData:
		view.stage = game.STAGE_END
		view.winner = data.Winner

		for _, reveal := range data.Players {
			if seat := view.seats[reveal.Name]; seat != nil {
				seat.Alive = reveal.Alive
				seat.Role = reveal.Role
				seat.Word = reveal.Word
			}
		}

	case game.GameAbortedData:
		view.stage = game.STAGE_ABORTED
	}
}

func (view *statusView) snapshot() dto.GameStatusResponse {
	players := make([]dto.SeatStatus, 0, len(view.order))
	for _, name := range view.order {
		players = append(players, *view.seats[name])
	}

	return dto.GameStatusResponse{
		SessionID:    view.sessionID,
		Stage:        view.stage,
		Round:        view.round,
		CivilianWord: view.civilianWord,
		SpyWord:      view.spyWord,
		Players:      players,
		Winner:       view.winner,
	}
}
