package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/groupbuy-app/lifecycle"
	"github.com/yeremiapane/groupbuy-app/utils"
)

var errNoSession = errors.New("user id not found in context")

// principal reads the caller set by middlewares.AuthMiddleware.
func principal(c *gin.Context) (lifecycle.Principal, error) {
	userID, ok := c.Get("user_id")
	if !ok {
		return lifecycle.Principal{}, errNoSession
	}
	id, ok := userID.(uint)
	if !ok || id == 0 {
		return lifecycle.Principal{}, errNoSession
	}
	role, _ := c.Get("role")
	roleStr, _ := role.(string)
	return lifecycle.Principal{UserID: id, Role: roleStr}, nil
}

// mustPrincipal writes a 401 and returns false when there is no session.
func mustPrincipal(c *gin.Context) (lifecycle.Principal, bool) {
	p, err := principal(c)
	if err != nil {
		respondDomainError(c, fmt.Errorf("%w: %v", lifecycle.ErrUnauthorized, err))
		return p, false
	}
	return p, true
}

func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		utils.RespondFailure(c, http.StatusBadRequest, "Invalid "+name, fmt.Errorf("invalid %s %q", name, c.Param(name)), nil)
		return 0, false
	}
	return uint(id), true
}

type errorKind struct {
	err     error
	code    int
	message string
}

// Order matters: the first kind the error matches wins.
var errorKinds = []errorKind{
	{lifecycle.ErrUnauthorized, http.StatusUnauthorized, "Please sign in to continue"},
	{lifecycle.ErrForbidden, http.StatusForbidden, "You do not have permission to do this"},
	{lifecycle.ErrNotFound, http.StatusNotFound, "The requested record does not exist"},
	{lifecycle.ErrFull, http.StatusConflict, "This group purchase is already full"},
	{lifecycle.ErrAlreadyJoined, http.StatusConflict, "You have already joined this group purchase"},
	{lifecycle.ErrAlreadyVoted, http.StatusConflict, "You have already voted"},
	{lifecycle.ErrInvalidState, http.StatusConflict, "This action is not available at the current stage"},
	{lifecycle.ErrDuplicateKey, http.StatusConflict, "This record already exists"},
	{lifecycle.ErrInvalidInput, http.StatusBadRequest, "The request is invalid"},
	{lifecycle.ErrTransientStore, http.StatusServiceUnavailable, "The service is busy, please try again"},
}

// respondDomainError maps lifecycle error kinds onto HTTP statuses.
func respondDomainError(c *gin.Context, err error) {
	for _, k := range errorKinds {
		if !errors.Is(err, k.err) {
			continue
		}
		var data interface{}
		if status, ok := lifecycle.CurrentStatus(err); ok {
			data = gin.H{"current_status": status}
		}
		utils.RespondFailure(c, k.code, k.message, err, data)
		return
	}
	utils.ErrorLogger.WithError(err).Errorf("%s %s failed", c.Request.Method, c.FullPath())
	utils.RespondFailure(c, http.StatusInternalServerError, "Something went wrong", err, nil)
}
