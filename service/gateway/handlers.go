package gateway

import (
	"strconv"

	midsec "ChatCore/middleware/security"
	"ChatCore/module/user/model"
	"ChatCore/tools/errs"

	"github.com/gin-gonic/gin"
)

type createConversationReq struct {
	Name         string   `json:"name"`
	Participants []string `json:"participants" binding:"required"`
	IsGroup      bool     `json:"isGroup"`
}

type contentReq struct {
	Content string `json:"content" binding:"required"`
}

type nameReq struct {
	Name string `json:"name" binding:"required"`
}

type usernameReq struct {
	Username string `json:"username" binding:"required"`
}

type adminsReq struct {
	Admins []string `json:"admins" binding:"required"`
}

type catchUpReq struct {
	ConversationIDs []string `json:"conversationIds" binding:"required"`
}

// status may be given directly or derived from the page the client shows
type statusReq struct {
	Status   string `json:"status"`
	Location string `json:"location"`
}

type usernamesReq struct {
	Usernames []string `json:"usernames" binding:"required"`
}

type receiverReq struct {
	Receiver string `json:"receiver" binding:"required"`
}

func messageIndex(c *gin.Context) (int, bool) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil || i < 0 {
		fail(c, errs.ErrInvalidArgument.WrapMsg("bad message index", "index", c.Param("index")))
		return 0, false
	}
	return i, true
}

// caller validates the credential for handlers that need the username itself.
func (s *Server) caller(c *gin.Context) (string, bool) {
	u, err := s.auth.ValidateOperation(c.Request.Context(), midsec.Credential(c))
	if err != nil {
		fail(c, err)
		return "", false
	}
	return u, true
}

func (s *Server) issueToken(c *gin.Context) {
	var req usernameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	token, exp, err := s.auth.IssueToken(c.Request.Context(), req.Username)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"token": token, "expireAt": exp})
}

func (s *Server) createConversation(c *gin.Context) {
	var req createConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	conv, err := s.chat.CreateConversation(c.Request.Context(), midsec.Credential(c), req.Name, req.Participants, req.IsGroup)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, conv)
}

func (s *Server) listConversations(c *gin.Context) {
	rows, err := s.chat.ListConversations(c.Request.Context(), midsec.Credential(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}

func (s *Server) getConversationInfo(c *gin.Context) {
	conv, err := s.chat.GetConversationInfo(c.Request.Context(), midsec.Credential(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, conv)
}

func (s *Server) modifyConversationName(c *gin.Context) {
	var req nameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	conv, err := s.chat.RenameConversation(c.Request.Context(), midsec.Credential(c), c.Param("id"), req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, conv)
}

func (s *Server) addChatMember(c *gin.Context) {
	var req usernameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	conv, err := s.chat.AddMember(c.Request.Context(), midsec.Credential(c), c.Param("id"), req.Username)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, conv)
}

func (s *Server) removeChatMember(c *gin.Context) {
	var req usernameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	conv, err := s.chat.RemoveMember(c.Request.Context(), midsec.Credential(c), c.Param("id"), req.Username)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, conv)
}

func (s *Server) addAdminToConversation(c *gin.Context) {
	var req adminsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	conv, err := s.chat.AddAdmins(c.Request.Context(), midsec.Credential(c), c.Param("id"), req.Admins)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, conv)
}

func (s *Server) addMessageToConversation(c *gin.Context) {
	var req contentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := s.chat.AddMessage(c.Request.Context(), midsec.Credential(c), c.Param("id"), req.Content)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, m)
}

func (s *Server) getLastMessage(c *gin.Context) {
	m, err := s.chat.GetLastMessage(c.Request.Context(), midsec.Credential(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"message": m})
}

func (s *Server) getDeliveredToArray(c *gin.Context) {
	i, valid := messageIndex(c)
	if !valid {
		return
	}
	users, err := s.chat.GetDeliveredTo(c.Request.Context(), midsec.Credential(c), c.Param("id"), i)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"deliveredTo": users})
}

func (s *Server) getSeenByArray(c *gin.Context) {
	i, valid := messageIndex(c)
	if !valid {
		return
	}
	users, err := s.chat.GetSeenBy(c.Request.Context(), midsec.Credential(c), c.Param("id"), i)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"seenBy": users})
}

func (s *Server) addNameToDeliveredTo(c *gin.Context) {
	i, valid := messageIndex(c)
	if !valid {
		return
	}
	if err := s.chat.MarkDelivered(c.Request.Context(), midsec.Credential(c), c.Param("id"), i); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

func (s *Server) addNameToSeenBy(c *gin.Context) {
	i, valid := messageIndex(c)
	if !valid {
		return
	}
	if err := s.chat.MarkSeen(c.Request.Context(), midsec.Credential(c), c.Param("id"), i); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

func (s *Server) deleteMessage(c *gin.Context) {
	i, valid := messageIndex(c)
	if !valid {
		return
	}
	if err := s.chat.DeleteMessage(c.Request.Context(), midsec.Credential(c), c.Param("id"), i); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

func (s *Server) notifyMessageIsDelivered(c *gin.Context) {
	var req catchUpReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	marked, err := s.chat.NotifyDelivered(c.Request.Context(), midsec.Credential(c), req.ConversationIDs)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"marked": marked})
}

func (s *Server) changeUserStatus(c *gin.Context) {
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, valid := s.caller(c)
	if !valid {
		return
	}
	status := req.Status
	if status == "" {
		status = model.StatusForLocation(req.Location)
	}
	if err := s.status.Change(c.Request.Context(), user, status); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"username": user, "status": status})
}

func (s *Server) getUserStatuses(c *gin.Context) {
	var req usernamesReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if _, valid := s.caller(c); !valid {
		return
	}
	st, err := s.status.Statuses(c.Request.Context(), req.Usernames)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"onlineStatuses": st})
}

func (s *Server) onlineContacts(c *gin.Context) {
	user, valid := s.caller(c)
	if !valid {
		return
	}
	online, err := s.status.OnlineContacts(c.Request.Context(), user)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"online": online})
}

func (s *Server) notifyContactRequest(c *gin.Context) {
	var req receiverReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, valid := s.caller(c)
	if !valid {
		return
	}
	if err := s.status.NotifyContactRequest(user, req.Receiver); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

func (s *Server) notifyCancelRequest(c *gin.Context) {
	var req receiverReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, valid := s.caller(c)
	if !valid {
		return
	}
	if err := s.status.NotifyCancelRequest(user, req.Receiver); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}
