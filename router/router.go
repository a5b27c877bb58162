package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yeremiapane/groupbuy-app/config"
	"github.com/yeremiapane/groupbuy-app/controllers"
	"github.com/yeremiapane/groupbuy-app/lifecycle"
	"github.com/yeremiapane/groupbuy-app/middlewares"
	"github.com/yeremiapane/groupbuy-app/models"
	"github.com/yeremiapane/groupbuy-app/notify"
	"github.com/yeremiapane/groupbuy-app/utils"
	"gorm.io/gorm"
)

// Deps carries what the handlers need.
type Deps struct {
	DB       *gorm.DB
	Engine   *lifecycle.Engine
	Registry *notify.Registry
	Sweeper  controllers.SweepRunner
	HTTP     config.HTTP
	WS       config.WS
}

func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if len(d.HTTP.TrustedProxies) > 0 {
		if err := r.SetTrustedProxies(d.HTTP.TrustedProxies); err != nil {
			utils.ErrorLogger.Printf("invalid trusted proxies: %v", err)
		}
	}

	r.Use(middlewares.RequestID())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares(d.HTTP.AllowedOrigins))
	r.Use(middlewares.LoggerMiddleware())
	r.Use(middlewares.NewRateLimiter(d.HTTP.RateLimit, d.HTTP.RateInterval).RateLimit())

	userCtrl := controllers.NewUserController(d.DB)
	campaignCtrl := controllers.NewCampaignController(d.Engine, d.Sweeper)
	messageCtrl := controllers.NewMessageController(d.DB, d.Engine)
	notifCtrl := controllers.NewNotificationController(d.DB)
	wsCtrl := controllers.NewWSController(d.Registry, controllers.WSOptions{
		AuthTimeout:    d.WS.AuthTimeout,
		SendBuffer:     d.WS.SendBuffer,
		PingPeriod:     d.WS.PingPeriod,
		AllowedOrigins: d.HTTP.AllowedOrigins,
	})

	r.GET("/ping", func(c *gin.Context) {
		utils.RespondJSON(c, http.StatusOK, "pong", gin.H{"time": time.Now().UTC()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// The socket authenticates with its first frame, not a header.
	r.GET("/ws", wsCtrl.Handle)

	public := r.Group("/")
	public.Use(middlewares.NewStrictRateLimiter())
	{
		public.POST("/register", userCtrl.Register)
		public.POST("/login", userCtrl.Login)
	}

	// Campaign reads are public.
	r.GET("/campaigns", campaignCtrl.ListCampaigns)
	r.GET("/campaigns/:id", campaignCtrl.GetCampaign)
	r.GET("/campaigns/:id/bids", campaignCtrl.ListBids)
	r.GET("/campaigns/:id/participants", campaignCtrl.ListParticipants)

	auth := r.Group("/")
	auth.Use(middlewares.AuthMiddleware())
	{
		auth.POST("/logout", userCtrl.Logout)
		auth.GET("/profile", userCtrl.GetProfile)

		campaigns := auth.Group("/campaigns")
		{
			campaigns.POST("", middlewares.CampaignAuditLogger("create"), campaignCtrl.CreateCampaign)
			campaigns.POST("/:id/recruit", middlewares.CampaignAuditLogger("recruit"), campaignCtrl.StartRecruitment)
			campaigns.POST("/:id/start-bidding", middlewares.CampaignAuditLogger("start-bidding"), campaignCtrl.StartBidding)
			campaigns.POST("/:id/cancel", middlewares.CampaignAuditLogger("cancel"), campaignCtrl.CancelCampaign)
			campaigns.POST("/:id/complete", middlewares.CampaignAuditLogger("complete"), campaignCtrl.CompleteCampaign)

			campaigns.POST("/:id/participants", campaignCtrl.JoinCampaign)
			campaigns.DELETE("/:id/participants", campaignCtrl.LeaveCampaign)

			bidLimiter := middlewares.NewRateLimiter(10, time.Minute).PerUser()
			campaigns.POST("/:id/bids",
				middlewares.RequireRole(models.RoleSeller),
				bidLimiter.RateLimit(),
				middlewares.CampaignAuditLogger("bid"),
				campaignCtrl.PlaceBid)
			campaigns.POST("/:id/votes", middlewares.CampaignAuditLogger("vote"), campaignCtrl.CastVote)

			campaigns.GET("/:id/messages", messageCtrl.ListMessages)
			campaigns.POST("/:id/messages", messageCtrl.PostMessage)
		}

		notifications := auth.Group("/notifications")
		{
			notifications.GET("", notifCtrl.GetMyNotifications)
			notifications.PATCH("/read-all", notifCtrl.MarkAllAsRead)
			notifications.PATCH("/:id/read", notifCtrl.MarkAsRead)
			notifications.DELETE("/:id", notifCtrl.DeleteNotification)
		}

		admin := auth.Group("/")
		admin.Use(middlewares.RequireRole(models.RoleAdmin))
		{
			admin.GET("/admin/users", userCtrl.GetAllUsers)
			admin.POST("/internal/sweep", campaignCtrl.Sweep)
		}
	}

	return r
}
