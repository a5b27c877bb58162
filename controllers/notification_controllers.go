package controllers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/groupbuy-app/lifecycle"
	"github.com/yeremiapane/groupbuy-app/models"
	"github.com/yeremiapane/groupbuy-app/utils"
	"gorm.io/gorm"
)

// NotificationController exposes the caller's own notification history. It is
// also how clients catch up on what was pushed while they were offline.
type NotificationController struct {
	DB *gorm.DB
}

func NewNotificationController(db *gorm.DB) *NotificationController {
	return &NotificationController{DB: db}
}

// GetMyNotifications -> GET /notifications?unread=true&page=&limit=
func (nc *NotificationController) GetMyNotifications(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	db := nc.DB.WithContext(c.Request.Context()).Model(&models.Notification{}).Where("user_id = ?", p.UserID)
	if c.Query("unread") == "true" {
		db = db.Where("is_read = ?", false)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	var notifs []models.Notification
	if err := db.Order("created_at DESC, id DESC").Offset((page - 1) * limit).Limit(limit).Find(&notifs).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	var unread int64
	if err := nc.DB.WithContext(c.Request.Context()).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", p.UserID, false).Count(&unread).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Notifications", gin.H{
		"items":        notifs,
		"total":        total,
		"unread_count": unread,
		"page":         page,
		"limit":        limit,
	})
}

// MarkAsRead -> PATCH /notifications/:id/read
func (nc *NotificationController) MarkAsRead(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	db := nc.DB.WithContext(c.Request.Context())
	res := db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, p.UserID).
		Update("is_read", true)
	if res.Error != nil {
		utils.RespondError(c, http.StatusInternalServerError, res.Error)
		return
	}
	// MySQL reports changed rows, so an already-read notification also lands here.
	if res.RowsAffected == 0 {
		var n int64
		if err := db.Model(&models.Notification{}).Where("id = ? AND user_id = ?", id, p.UserID).Count(&n).Error; err != nil {
			utils.RespondError(c, http.StatusInternalServerError, err)
			return
		}
		if n == 0 {
			respondDomainError(c, fmt.Errorf("notification %d: %w", id, lifecycle.ErrNotFound))
			return
		}
	}
	utils.RespondJSON(c, http.StatusOK, "Notification marked as read", gin.H{"id": id})
}

// MarkAllAsRead -> PATCH /notifications/read-all
func (nc *NotificationController) MarkAllAsRead(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	res := nc.DB.WithContext(c.Request.Context()).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", p.UserID, false).
		Update("is_read", true)
	if res.Error != nil {
		utils.RespondError(c, http.StatusInternalServerError, res.Error)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "All notifications marked as read", gin.H{"updated": res.RowsAffected})
}

// DeleteNotification -> DELETE /notifications/:id
func (nc *NotificationController) DeleteNotification(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	res := nc.DB.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", id, p.UserID).
		Delete(&models.Notification{})
	if res.Error != nil {
		utils.RespondError(c, http.StatusInternalServerError, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		respondDomainError(c, fmt.Errorf("notification %d: %w", id, lifecycle.ErrNotFound))
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Notification deleted", gin.H{"id": id})
}
