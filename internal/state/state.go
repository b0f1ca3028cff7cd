package state

import (
	"who-is-spy-llm/internal/config"
	"who-is-spy-llm/internal/service"
)

type AppState struct {
	Cfg      *config.AppConfig
	ArenaSvc *service.ArenaService
}

func NewAppState(
	cfg *config.AppConfig,
	arenaSvc *service.ArenaService,
) *AppState {
	return &AppState{
		Cfg:      cfg,
		ArenaSvc: arenaSvc,
	}
}
