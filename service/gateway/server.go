// Package gateway exposes the chat core over HTTP and websocket.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ChatCore/middleware"
	midsec "ChatCore/middleware/security"
	chatsvc "ChatCore/module/chat/service"
	usersvc "ChatCore/module/user/service"
	"ChatCore/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Options struct {
	Token          *midsec.Options
	// DevTokens exposes POST /auth/token, which signs a token for any known
	// user without proof of identity. Development only.
	DevTokens      bool
	AllowedOrigins []string
	PingInterval   time.Duration
	WriteTimeout   time.Duration
}

type Server struct {
	chat   *chatsvc.Service
	status *usersvc.Status
	auth   *usersvc.Auth
	log    *zap.Logger
	opts   Options

	upgrader websocket.Upgrader
	engine   *gin.Engine
}

func NewServer(chat *chatsvc.Service, status *usersvc.Status, auth *usersvc.Auth, log *zap.Logger, opts Options) *Server {
	safe.MustNotNil(chat, "chat service")
	safe.MustNotNil(status, "status service")
	safe.MustNotNil(auth, "auth")
	if log == nil {
		log = zap.NewNop()
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	s := &Server{chat: chat, status: status, auth: auth, log: log, opts: opts}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return middleware.OriginAllowed(r, opts.AllowedOrigins)
		},
	}
	s.engine = s.routes()
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	mm := middleware.NewManager()
	mm.Add(middleware.RequestID(), middleware.AccessLog(s.log))
	r.Use(mm.Use())

	auth := middleware.RouteOpt{IsAuth: true, Token: s.opts.Token}
	open := middleware.RouteOpt{}

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	middleware.GET(r, "/ws", s.handleWS, open)

	v1 := r.Group("/api/v1")
	if s.opts.DevTokens {
		middleware.POST(v1, "/auth/token", s.issueToken, open)
	}

	middleware.POST(v1, "/conversations", s.createConversation, auth)
	middleware.GET(v1, "/conversations", s.listConversations, auth)
	middleware.GET(v1, "/conversations/:id", s.getConversationInfo, auth)
	middleware.POST(v1, "/conversations/:id/name", s.modifyConversationName, auth)
	middleware.POST(v1, "/conversations/:id/members", s.addChatMember, auth)
	middleware.POST(v1, "/conversations/:id/members/remove", s.removeChatMember, auth)
	middleware.POST(v1, "/conversations/:id/admins", s.addAdminToConversation, auth)

	middleware.POST(v1, "/conversations/:id/messages", s.addMessageToConversation, auth)
	middleware.GET(v1, "/conversations/:id/messages/last", s.getLastMessage, auth)
	middleware.GET(v1, "/conversations/:id/messages/:index/delivered", s.getDeliveredToArray, auth)
	middleware.GET(v1, "/conversations/:id/messages/:index/seen", s.getSeenByArray, auth)
	middleware.POST(v1, "/conversations/:id/messages/:index/delivered", s.addNameToDeliveredTo, auth)
	middleware.POST(v1, "/conversations/:id/messages/:index/seen", s.addNameToSeenBy, auth)
	middleware.POST(v1, "/conversations/:id/messages/:index/delete", s.deleteMessage, auth)
	middleware.POST(v1, "/receipts/catch-up", s.notifyMessageIsDelivered, auth)

	middleware.POST(v1, "/status", s.changeUserStatus, auth)
	middleware.POST(v1, "/status/query", s.getUserStatuses, auth)
	middleware.GET(v1, "/contacts/online", s.onlineContacts, auth)
	middleware.POST(v1, "/contacts/requests/notify", s.notifyContactRequest, auth)
	middleware.POST(v1, "/contacts/requests/cancel", s.notifyCancelRequest, auth)
	return r
}

// Run serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("gateway listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
