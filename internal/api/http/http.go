package http

import (
	"fmt"
	"net"

	"who-is-spy-llm/internal/api/http/websocket"
	"who-is-spy-llm/internal/state"

	"github.com/kataras/iris/v12"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

func RunServer(appState *state.AppState) {
	app := iris.Default()

	app.HandleDir(
		"/",
		iris.Dir(appState.Cfg.StaticDir),
		iris.DirOptions{
			IndexName: "index.html",
			SPA:       true,
			Compress:  true,
		},
	)

	api := app.Party("/api/v1")

	api.Post("/games/start", StartGame(appState))
	api.Post("/games/abort", AbortGame(appState))
	api.Get("/games/status", GameStatus(appState))

	api.Get("/ws/watch", websocket.WatchGame(appState))

	addr := fmt.Sprintf(
		"%s:%d",
		appState.Cfg.Host,
		appState.Cfg.Port,
	)

	printWatchQR(appState.Cfg.Host, appState.Cfg.Port)

	app.Listen(addr)
}

// printWatchQR 在终端打印观战地址的二维码，手机扫码即可围观
func printWatchQR(host string, port int) {
	if host == "" || host == "0.0.0.0" {
		ip, err := outboundIP()
		if err != nil {
			zap.S().Warnf("探测本机地址失败，跳过二维码: %v", err)
			return
		}

		host = ip
	}

	url := fmt.Sprintf("http://%s:%d", host, port)

	qr, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		zap.S().Warnf("生成二维码失败: %v", err)
		return
	}

	fmt.Println(qr.ToSmallString(false))
	zap.S().Infof("观战地址: %s", url)
}

// outboundIP 借一次 UDP 拨号拿到本机出口地址，不会真的发包
func outboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
