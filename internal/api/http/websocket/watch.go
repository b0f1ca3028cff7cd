package websocket

import (
	"net/http"
	"time"

	"who-is-spy-llm/internal/service/game"
	"who-is-spy-llm/internal/state"

	"github.com/gorilla/websocket"
	"github.com/kataras/iris/v12"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// NOTE: 暂时允许所有来源
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const (
	// 心跳间隔
	HEARTBEAT_INTERVAL = 30 * time.Second
	// 心跳超时时间
	HEARTBEAT_TIMEOUT = 45 * time.Second
)

var heartbeatHandler = func(conn *websocket.Conn) func(string) error {
	return func(string) error {
		conn.SetReadDeadline(time.Now().Add(HEARTBEAT_TIMEOUT))
		return nil
	}
}

// WatchGame 把观战者挂到事件流上：先补播当前对局已发生的事件，
// 再实时转发后续事件。观战是只读的，客户端上行消息一律忽略。
func WatchGame(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		conn, err := upgrader.Upgrade(
			ctx.ResponseWriter(),
			ctx.Request(),
			nil,
		)
		if err != nil {
			zap.L().Error("升级到WebSocket失败", zap.Error(err))
			ctx.StatusCode(iris.StatusBadRequest)
			return
		}

		defer conn.Close()

		conn.SetReadDeadline(time.Now().Add(HEARTBEAT_TIMEOUT))
		conn.SetPongHandler(heartbeatHandler(conn))

		snapshot, liveCh, cancel := appState.ArenaSvc.Watch()
		defer cancel()

		clientIP := ctx.RemoteAddr()

		zap.L().Info(
			"观战者接入",
			zap.String("client_ip", clientIP),
			zap.Int("replayed", len(snapshot)),
		)

		writeDone := make(chan struct{})

		// 写入协程：先补播快照，再转发实时事件，顺带维持心跳
		go func() {
			defer close(writeDone)

			for _, ev := range snapshot {
				if err := writeEvent(conn, ev); err != nil {
					zap.L().Error(
						"补播事件失败",
						zap.String("client_ip", clientIP),
						zap.Error(err),
					)
					return
				}
			}

			ticker := time.NewTicker(HEARTBEAT_INTERVAL)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						zap.L().Error(
							"发送心跳失败",
							zap.String("client_ip", clientIP),
							zap.Error(err),
						)
						return
					}

					conn.SetWriteDeadline(time.Now().Add(HEARTBEAT_TIMEOUT))

				case ev, ok := <-liveCh:
					// 通道关闭说明观战已被取消
					if !ok {
						return
					}

					if err := writeEvent(conn, ev); err != nil {
						zap.L().Error(
							"发送事件失败",
							zap.String("client_ip", clientIP),
							zap.Error(err),
						)
						return
					}
				}
			}
		}()

		// 读取循环只为感知断连，消息本身不处理
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(
					err,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure,
					websocket.CloseNormalClosure,
				) {
					zap.L().Error(
						"读取消息失败",
						zap.String("client_ip", clientIP),
						zap.Error(err),
					)
				}

				break
			}
		}

		cancel()
		<-writeDone

		zap.L().Info(
			"观战者离开",
			zap.String("client_ip", clientIP),
		)
	}
}

func writeEvent(conn *websocket.Conn, ev game.Event) error {
	conn.SetWriteDeadline(time.Now().Add(HEARTBEAT_TIMEOUT))

	return conn.WriteJSON(ev)
}
