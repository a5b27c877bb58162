package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/yeremiapane/groupbuy-app/lifecycle"
	"github.com/yeremiapane/groupbuy-app/models"
	"github.com/yeremiapane/groupbuy-app/utils"
)

// SweepRunner triggers one deadline sweep. *services.DeadlineSweeper implements it.
type SweepRunner interface {
	RunOnce(ctx context.Context) (lifecycle.SweepReport, error)
}

type CampaignController struct {
	Engine  *lifecycle.Engine
	Sweeper SweepRunner
}

func NewCampaignController(engine *lifecycle.Engine, sweeper SweepRunner) *CampaignController {
	return &CampaignController{Engine: engine, Sweeper: sweeper}
}

// ListCampaigns -> GET /campaigns?status=&page=&limit=
func (cc *CampaignController) ListCampaigns(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	res, err := cc.Engine.List(c.Request.Context(), lifecycle.ListQuery{
		Status: models.CampaignStatus(strings.ToUpper(c.Query("status"))),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Campaigns", res)
}

func (cc *CampaignController) CreateCampaign(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	var req struct {
		Title            string          `json:"title" binding:"required,max=255"`
		Description      string          `json:"description"`
		MinParticipants  int             `json:"min_participants" binding:"required,min=1"`
		MaxParticipants  int             `json:"max_participants" binding:"required,min=1"`
		TargetPrice      decimal.Decimal `json:"target_price"`
		VoteThreshold    float64         `json:"vote_threshold"`
		AuctionStartTime *time.Time      `json:"auction_start_time"`
		AuctionEndTime   *time.Time      `json:"auction_end_time"`
		Draft            bool            `json:"draft"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	campaign, err := cc.Engine.Create(c.Request.Context(), p, lifecycle.CreateInput{
		Title:            req.Title,
		Description:      req.Description,
		MinParticipants:  req.MinParticipants,
		MaxParticipants:  req.MaxParticipants,
		TargetPrice:      req.TargetPrice,
		VoteThreshold:    req.VoteThreshold,
		AuctionStartTime: req.AuctionStartTime,
		AuctionEndTime:   req.AuctionEndTime,
		Draft:            req.Draft,
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}
	utils.InfoLogger.WithField("campaign_id", campaign.ID).Infof("Campaign created by user %d", p.UserID)
	utils.RespondJSON(c, http.StatusCreated, "Campaign created", campaign)
}

func (cc *CampaignController) GetCampaign(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	campaign, err := cc.Engine.Get(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Campaign detail", campaign)
}

type transitionFunc func(ctx context.Context, id uint, actor lifecycle.Principal) (*models.Campaign, error)

func (cc *CampaignController) transition(c *gin.Context, message string, fn transitionFunc) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	campaign, err := fn(c.Request.Context(), id, p)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, message, campaign)
}

// StartRecruitment -> POST /campaigns/:id/recruit
func (cc *CampaignController) StartRecruitment(c *gin.Context) {
	cc.transition(c, "Recruitment started", cc.Engine.StartRecruitment)
}

// StartBidding -> POST /campaigns/:id/start-bidding
func (cc *CampaignController) StartBidding(c *gin.Context) {
	cc.transition(c, "Bidding started", cc.Engine.StartBidding)
}

// CancelCampaign -> POST /campaigns/:id/cancel
func (cc *CampaignController) CancelCampaign(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	cc.transition(c, "Campaign cancelled", func(ctx context.Context, id uint, actor lifecycle.Principal) (*models.Campaign, error) {
		return cc.Engine.Cancel(ctx, id, actor, strings.TrimSpace(req.Reason))
	})
}

// CompleteCampaign -> POST /campaigns/:id/complete
func (cc *CampaignController) CompleteCampaign(c *gin.Context) {
	cc.transition(c, "Campaign completed", cc.Engine.Complete)
}

// JoinCampaign -> POST /campaigns/:id/participants
func (cc *CampaignController) JoinCampaign(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	participant, err := cc.Engine.Join(c.Request.Context(), id, p.UserID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Joined campaign", participant)
}

// LeaveCampaign -> DELETE /campaigns/:id/participants
func (cc *CampaignController) LeaveCampaign(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := cc.Engine.Leave(c.Request.Context(), id, p.UserID); err != nil {
		respondDomainError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Left campaign", gin.H{"campaign_id": id})
}

func (cc *CampaignController) ListParticipants(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if _, err := cc.Engine.Get(c.Request.Context(), id); err != nil {
		respondDomainError(c, err)
		return
	}
	participants, err := cc.Engine.Participants(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Participants", participants)
}

func (cc *CampaignController) ListBids(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	bids, err := cc.Engine.ListBids(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Bids", bids)
}

// PlaceBid -> POST /campaigns/:id/bids (sellers only)
func (cc *CampaignController) PlaceBid(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Price       decimal.Decimal `json:"price"`
		Description string          `json:"description" binding:"max=2000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	bid, created, err := cc.Engine.PlaceBid(c.Request.Context(), id, p, req.Price, req.Description)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if created {
		utils.RespondJSON(c, http.StatusCreated, "Bid placed", bid)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Bid updated", bid)
}

// CastVote -> POST /campaigns/:id/votes
func (cc *CampaignController) CastVote(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Approved *bool `json:"approved" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	res, err := cc.Engine.CastVote(c.Request.Context(), id, p.UserID, *req.Approved)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Vote recorded", res)
}

// Sweep -> POST /internal/sweep (admin)
func (cc *CampaignController) Sweep(c *gin.Context) {
	report, err := cc.Sweeper.RunOnce(c.Request.Context())
	if err != nil {
		utils.ErrorLogger.WithError(err).Error("manual deadline sweep reported errors")
		utils.RespondFailure(c, http.StatusInternalServerError, "Sweep finished with errors", err, report)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Sweep finished", report)
}
