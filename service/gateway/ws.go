package gateway

import (
	"net"
	"strings"
	"sync"
	"time"

	midsec "ChatCore/middleware/security"
	"ChatCore/module/notify"
	"ChatCore/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// parseChannels reads ?channel=A&channel=B or ?channels=A,B.
func parseChannels(c *gin.Context) ([]notify.Channel, error) {
	var raw []string
	raw = append(raw, c.QueryArray("channel")...)
	if v := c.Query("channels"); v != "" {
		raw = append(raw, strings.Split(v, ",")...)
	}
	seen := make(map[notify.Channel]struct{})
	var out []notify.Channel
	for _, r := range raw {
		ch := notify.Channel(strings.TrimSpace(r))
		if _, dup := seen[ch]; dup || ch == "" {
			continue
		}
		if !ch.Valid() {
			return nil, errs.ErrInvalidArgument.WrapMsg("unknown channel", "channel", string(ch))
		}
		seen[ch] = struct{}{}
		out = append(out, ch)
	}
	if len(out) == 0 {
		return nil, errs.ErrInvalidArgument.WrapMsg("no channel requested")
	}
	return out, nil
}

// handleWS authenticates before upgrading, subscribes the validated user to
// the requested channels and streams admitted events as JSON text frames.
// Subscriptions end with the connection.
func (s *Server) handleWS(c *gin.Context) {
	channels, err := parseChannels(c)
	if err != nil {
		fail(c, err)
		return
	}
	credential := midsec.ExtractToken(c, s.opts.Token)
	user, err := s.chat.Authenticate(c.Request.Context(), credential)
	if err != nil {
		fail(c, err)
		return
	}

	subs := make([]*notify.Subscription, 0, len(channels))
	closeAll := func() {
		for _, sub := range subs {
			sub.Close()
		}
	}
	for _, ch := range channels {
		sub, err := s.chat.Subscribe(c.Request.Context(), credential, ch)
		if err != nil {
			closeAll()
			fail(c, err)
			return
		}
		subs = append(subs, sub)
	}
	defer closeAll()

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Info("websocket upgrade failed", zap.String("username", user), zap.Error(err))
		return
	}
	defer ws.Close()

	connID := uuid.NewString()
	log := s.log.With(zap.String("connId", connID), zap.String("username", user))
	log.Info("subscription open", zap.Int("channels", len(subs)))

	done := make(chan struct{})
	out := make(chan notify.Event, notify.DefaultBuffer)
	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *notify.Subscription) {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				case ev, open := <-sub.C():
					if !open {
						return
					}
					select {
					case out <- ev:
					case <-done:
						return
					}
				}
			}
		}(sub)
	}

	go s.writeLoop(ws, out, done, log)
	s.readLoop(ws, log)

	close(done)
	wg.Wait()
	log.Info("subscription closed")
}

// readLoop only watches for the peer going away.
func (s *Server) readLoop(ws *websocket.Conn, log *zap.Logger) {
	ws.SetReadLimit(4096)
	_ = ws.SetReadDeadline(time.Now().Add(2 * s.opts.PingInterval))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(2 * s.opts.PingInterval))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Debug("peer closed")
			} else if ne, isNet := err.(net.Error); isNet && ne.Timeout() {
				log.Info("read timeout")
			} else {
				log.Debug("read error", zap.Error(err))
			}
			return
		}
	}
}

// writeLoop is the only writer on ws.
func (s *Server) writeLoop(ws *websocket.Conn, out <-chan notify.Event, done <-chan struct{}, log *zap.Logger) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.opts.WriteTimeout))
			return
		case ev := <-out:
			_ = ws.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := ws.WriteJSON(ev); err != nil {
				log.Info("write failed", zap.Error(err))
				_ = ws.Close()
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteTimeout)); err != nil {
				_ = ws.Close()
				return
			}
		}
	}
}
