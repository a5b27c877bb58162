package utils

import (
	"github.com/gin-gonic/gin"
)

type JSONResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func RespondJSON(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, JSONResponse{
		Status:  code >= 200 && code < 300,
		Message: message,
		Data:    data,
	})
}

func RespondError(c *gin.Context, code int, err error) {
	RespondErrorData(c, code, err, nil)
}

// RespondErrorData is RespondError with extra context for the client, e.g. the
// current campaign status on a rejected transition.
func RespondErrorData(c *gin.Context, code int, err error, data interface{}) {
	c.JSON(code, JSONResponse{
		Status:  false,
		Message: err.Error(),
		Error:   err.Error(),
		Data:    data,
	})
}

// RespondFailure separates the user-facing message from the underlying error.
func RespondFailure(c *gin.Context, code int, message string, err error, data interface{}) {
	resp := JSONResponse{Status: false, Message: message, Data: data}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(code, resp)
}
