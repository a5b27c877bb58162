package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/groupbuy-app/notify"
	"github.com/yeremiapane/groupbuy-app/protocol"
	"github.com/yeremiapane/groupbuy-app/utils"
)

type WSOptions struct {
	AuthTimeout    time.Duration
	SendBuffer     int
	PingPeriod     time.Duration
	AllowedOrigins []string
}

// WSController serves the notification push socket. The connection is not
// registered for delivery until the client has sent a valid auth frame.
type WSController struct {
	Registry *notify.Registry
	opts     WSOptions
	upgrader websocket.Upgrader
}

func NewWSController(registry *notify.Registry, opts WSOptions) *WSController {
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = 10 * time.Second
	}
	wc := &WSController{Registry: registry, opts: opts}
	wc.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     wc.checkOrigin,
	}
	return wc
}

func (wc *WSController) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(wc.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range wc.opts.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// Handle -> GET /ws
func (wc *WSController) Handle(c *gin.Context) {
	ws, err := wc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.ErrorLogger.Printf("websocket upgrade failed: %v", err)
		return
	}

	if err := writeFrame(ws, protocol.TypeConnected, protocol.ConnectedData{Message: "send an auth frame to start receiving notifications"}); err != nil {
		ws.Close()
		return
	}

	claims, err := wc.authenticate(ws)
	if err != nil {
		utils.InfoLogger.WithError(err).Info("websocket authentication rejected")
		_ = writeFrame(ws, protocol.TypeError, protocol.ErrorData{Message: err.Error()})
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(time.Second))
		ws.Close()
		return
	}

	client := notify.NewClient(ws, claims.UserID, wc.opts.SendBuffer, wc.opts.PingPeriod)
	go client.WritePump()

	ack, err := protocol.Encode(protocol.TypeAuthSuccess, protocol.AuthSuccessData{UserID: claims.UserID, Role: claims.Role})
	if err == nil {
		_ = client.Send(ack)
	}
	wc.Registry.Register(claims.UserID, client)

	log := utils.InfoLogger.WithFields(logrus.Fields{"user_id": claims.UserID, "conn_id": client.ID})
	log.Info("websocket client registered")

	wc.readLoop(ws, client)

	wc.Registry.Unregister(client)
	client.Close()
	log.Info("websocket client unregistered")
}

func (wc *WSController) authenticate(ws *websocket.Conn) (*utils.CustomClaims, error) {
	_ = ws.SetReadDeadline(time.Now().Add(wc.opts.AuthTimeout))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		return nil, errors.New("authentication timed out")
	}
	env, err := protocol.Decode(raw)
	if err != nil || env.Type != protocol.TypeAuth {
		return nil, errors.New("first frame must be an auth frame")
	}
	var auth protocol.AuthData
	if err := env.Unmarshal(&auth); err != nil || auth.Token == "" {
		return nil, errors.New("auth frame carries no token")
	}
	claims, err := utils.ParseToken(auth.Token)
	if err != nil {
		return nil, err
	}
	_ = ws.SetReadDeadline(time.Time{})
	return claims, nil
}

// readLoop only keeps the connection alive; clients have nothing to say after
// authenticating.
func (wc *WSController) readLoop(ws *websocket.Conn, client *notify.Client) {
	if wc.opts.PingPeriod > 0 {
		wait := wc.opts.PingPeriod * 2
		_ = ws.SetReadDeadline(time.Now().Add(wait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(wait))
		})
	}
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
		select {
		case <-client.Done():
			return
		default:
		}
	}
}

func writeFrame(ws *websocket.Conn, typ string, data interface{}) error {
	frame, err := protocol.Encode(typ, data)
	if err != nil {
		return err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return ws.WriteMessage(websocket.TextMessage, frame)
}
