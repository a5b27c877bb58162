package controllers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/groupbuy-app/lifecycle"
	"github.com/yeremiapane/groupbuy-app/models"
	"github.com/yeremiapane/groupbuy-app/utils"
	"gorm.io/gorm"
)

// MessageController serves the per-campaign chat. Only participants may read
// or post.
type MessageController struct {
	DB     *gorm.DB
	Engine *lifecycle.Engine
}

func NewMessageController(db *gorm.DB, engine *lifecycle.Engine) *MessageController {
	return &MessageController{DB: db, Engine: engine}
}

func (mc *MessageController) requireParticipant(c *gin.Context) (lifecycle.Principal, uint, bool) {
	p, ok := mustPrincipal(c)
	if !ok {
		return p, 0, false
	}
	id, ok := paramID(c, "id")
	if !ok {
		return p, 0, false
	}
	if _, err := mc.Engine.Get(c.Request.Context(), id); err != nil {
		respondDomainError(c, err)
		return p, 0, false
	}
	joined, err := mc.Engine.IsParticipant(c.Request.Context(), id, p.UserID)
	if err != nil {
		respondDomainError(c, err)
		return p, 0, false
	}
	if !joined && !p.IsAdmin() {
		respondDomainError(c, fmt.Errorf("%w: only participants can use the campaign chat", lifecycle.ErrForbidden))
		return p, 0, false
	}
	return p, id, true
}

// ListMessages -> GET /campaigns/:id/messages?after=<id>&limit=
func (mc *MessageController) ListMessages(c *gin.Context) {
	_, id, ok := mc.requireParticipant(c)
	if !ok {
		return
	}
	after, _ := strconv.ParseUint(c.DefaultQuery("after", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	var messages []models.Message
	if err := mc.DB.WithContext(c.Request.Context()).Preload("User").
		Where("campaign_id = ? AND id > ?", id, after).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Messages", messages)
}

func (mc *MessageController) PostMessage(c *gin.Context) {
	p, id, ok := mc.requireParticipant(c)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content" binding:"required,max=1000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		respondDomainError(c, fmt.Errorf("%w: message is empty", lifecycle.ErrInvalidInput))
		return
	}

	msg := models.Message{CampaignID: id, UserID: p.UserID, Content: content}
	if err := mc.DB.WithContext(c.Request.Context()).Create(&msg).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Message sent", msg)
}
