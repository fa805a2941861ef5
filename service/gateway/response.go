package gateway

import (
	"net/http"

	"ChatCore/tools/errs"

	"github.com/gin-gonic/gin"
)

type body struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
	Data   any    `json:"data,omitempty"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, body{Code: 0, Msg: "ok", Data: data})
}

// fail answers with the status mapped from the error code. Errors without a
// code are reported as internal and their text is not exposed.
func fail(c *gin.Context, err error) {
	ce, isCode := errs.AsCode(err)
	if !isCode {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, body{Code: errs.ServerInternalError, Msg: errs.ErrInternal.Msg})
		return
	}
	c.AbortWithStatusJSON(errs.HTTPStatus(ce.Code), body{Code: ce.Code, Msg: ce.Msg, Detail: ce.Detail})
}

func badRequest(c *gin.Context, err error) {
	fail(c, errs.ErrInvalidArgument.WrapMsg("malformed request", "reason", err.Error()))
}
