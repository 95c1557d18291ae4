package broadcast

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades the request and subscribes the socket to the hub
// until the peer goes away.
func WSHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.Log.Debug().Err(err).Msg("websocket upgrade failed")
			return
		}

		if err := ws.WriteMessage(websocket.TextMessage, hub.welcome("websocket")); err != nil {
			_ = ws.Close()
			return
		}
		hub.AddWS(ws)
		hub.Log.Debug().Str("remote", c.Request.RemoteAddr).Msg("websocket client connected")

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				break
			}
		}

		hub.RemoveWS(ws)
		hub.Log.Debug().Str("remote", c.Request.RemoteAddr).Msg("websocket client disconnected")
	}
}
