package lifecycle

import (
	"fmt"

	"github.com/yeremiapane/groupbuy-app/models"
	"github.com/yeremiapane/groupbuy-app/utils"
)

func campaignLink(id uint) *string {
	link := fmt.Sprintf("/campaigns/%d", id)
	return &link
}

func build(t models.NotificationType, c *models.Campaign, title, message string, p models.NotificationPayload) (models.Notification, error) {
	n := models.Notification{
		Type:    t,
		Title:   title,
		Message: message,
		Link:    campaignLink(c.ID),
	}
	if err := n.SetPayload(p); err != nil {
		return n, err
	}
	return n, nil
}

func participantJoinedNotification(c *models.Campaign, userID uint) (models.Notification, error) {
	return build(models.NotifParticipant, c,
		"New participant",
		fmt.Sprintf("A new participant joined \"%s\" (%d/%d).", c.Title, c.CurrentParticipants, c.MaxParticipants),
		models.ParticipantPayload{CampaignID: c.ID, UserID: userID, CurrentParticipants: c.CurrentParticipants})
}

func auctionStartNotification(c *models.Campaign) (models.Notification, error) {
	return build(models.NotifAuctionStart, c,
		"Bidding has started",
		fmt.Sprintf("Sellers can now bid on \"%s\".", c.Title),
		models.AuctionPayload{CampaignID: c.ID, AuctionEndTime: c.AuctionEndTime})
}

func auctionEndNotification(c *models.Campaign, winner models.Bid) (models.Notification, error) {
	return build(models.NotifAuctionEnd, c,
		"Bidding has closed",
		fmt.Sprintf("Bidding on \"%s\" closed. Lowest offer: %s.", c.Title, utils.FormatCurrencyKRW(winner.Price)),
		models.AuctionPayload{CampaignID: c.ID, AuctionEndTime: c.AuctionEndTime, WinningBidID: &winner.ID})
}

func voteStartNotification(c *models.Campaign, winner models.Bid, participants int) (models.Notification, error) {
	return build(models.NotifVoteStart, c,
		"Voting has started",
		fmt.Sprintf("Vote on the best offer for \"%s\": %s.", c.Title, utils.FormatCurrencyKRW(winner.Price)),
		models.VotePayload{CampaignID: c.ID, VoteEndTime: c.VoteEndTime, TotalVotes: participants})
}

func voteReminderNotification(c *models.Campaign, votes, participants int) (models.Notification, error) {
	return build(models.NotifVoteReminder, c,
		"Voting closes soon",
		fmt.Sprintf("You have not voted on \"%s\" yet.", c.Title),
		models.VotePayload{CampaignID: c.ID, VoteEndTime: c.VoteEndTime, CurrentVotes: votes, TotalVotes: participants})
}

func voteEndNotification(c *models.Campaign, approvals, participants int) (models.Notification, error) {
	outcome := "was rejected"
	if c.Status == models.StatusConfirmed {
		outcome = "was approved"
	}
	return build(models.NotifVoteEnd, c,
		"Voting has closed",
		fmt.Sprintf("Your offer on \"%s\" %s (%d of %d approvals).", c.Title, outcome, approvals, participants),
		models.VotePayload{CampaignID: c.ID, VoteEndTime: c.VoteEndTime, CurrentVotes: approvals, TotalVotes: participants})
}

func confirmedNotification(c *models.Campaign) (models.Notification, error) {
	return build(models.NotifGroupConfirmed, c,
		"Group purchase confirmed",
		fmt.Sprintf("\"%s\" has been confirmed.", c.Title),
		models.OutcomePayload{CampaignID: c.ID, WinningBidID: c.WinningBidID})
}

func cancelledNotification(c *models.Campaign, reason string) (models.Notification, error) {
	return build(models.NotifGroupCanceled, c,
		"Group purchase cancelled",
		fmt.Sprintf("\"%s\" was cancelled: %s.", c.Title, reason),
		models.OutcomePayload{CampaignID: c.ID, Reason: reason})
}

func reviewRequestNotification(c *models.Campaign) (models.Notification, error) {
	return build(models.NotifReviewRequest, c,
		"How did it go?",
		fmt.Sprintf("\"%s\" is complete. Please leave a review.", c.Title),
		models.OutcomePayload{CampaignID: c.ID, WinningBidID: c.WinningBidID})
}
