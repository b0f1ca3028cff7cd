package http

import (
	"errors"

	"who-is-spy-llm/internal/service"
	"who-is-spy-llm/internal/service/dto"
	"who-is-spy-llm/internal/state"

	"github.com/kataras/iris/v12"
)

func StartGame(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		var req dto.StartGameRequest

		// 空请求体表示全部走默认配置
		if ctx.GetContentLength() > 0 {
			if err := ctx.ReadJSON(&req); err != nil {
				ctx.StatusCode(iris.StatusBadRequest)
				ctx.JSON(iris.Map{
					"error": "请求参数无效",
				})
				return
			}
		}

		resp, err := appState.ArenaSvc.StartGame(req)
		if err != nil {
			if errors.Is(err, service.ErrGameRunning) {
				ctx.StatusCode(iris.StatusConflict)
			} else {
				ctx.StatusCode(iris.StatusBadRequest)
			}

			ctx.JSON(iris.Map{
				"error": err.Error(),
			})
			return
		}

		ctx.JSON(resp)
	}
}

func AbortGame(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		resp, err := appState.ArenaSvc.Abort()
		if err != nil {
			if errors.Is(err, service.ErrNoGame) {
				ctx.StatusCode(iris.StatusNotFound)
			} else {
				ctx.StatusCode(iris.StatusBadRequest)
			}

			ctx.JSON(iris.Map{
				"error": err.Error(),
			})
			return
		}

		ctx.JSON(resp)
	}
}

func GameStatus(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		ctx.JSON(appState.ArenaSvc.Status())
	}
}
