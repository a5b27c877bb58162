package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/groupbuy-app/utils"
)

// CampaignAuditLogger records who attempted which campaign action and how it
// ended.
func CampaignAuditLogger(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		fields := logrus.Fields{
			"action":      action,
			"campaign_id": c.Param("id"),
			"status":      c.Writer.Status(),
		}
		if userID, ok := c.Get("user_id"); ok {
			fields["user_id"] = userID
		}
		if c.Writer.Status() < 300 {
			utils.InfoLogger.WithFields(fields).Info("campaign action succeeded")
		} else {
			utils.ErrorLogger.WithFields(fields).Warn("campaign action rejected")
		}
	}
}
