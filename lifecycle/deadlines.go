package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/groupbuy-app/models"
	"github.com/yeremiapane/groupbuy-app/utils"
	"gorm.io/gorm/clause"
)

// SweepReport summarises one EvaluateDeadlines pass.
type SweepReport struct {
	Transitions int `json:"transitions"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
	Reminders   int `json:"reminders"`
}

// EvaluateDeadlines applies every elapsed time boundary:
//
//	RECRUITING past auctionStartTime -> BIDDING (enough participants) or CANCELLED
//	BIDDING past auctionEndTime      -> VOTING (at least one bid) or CANCELLED
//	VOTING past voteEndTime          -> CONFIRMED (threshold met) or CANCELLED
//
// Each campaign is handled in its own transaction and the status write is
// conditional, so running the sweep twice, or concurrently with user actions,
// applies each boundary at most once. It also sends vote reminders.
func (e *Engine) EvaluateDeadlines(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := e.now()

	var due []uint
	err := e.db.WithContext(ctx).Model(&models.Campaign{}).
		Where("(status = ? AND auction_start_time <= ?) OR (status = ? AND auction_end_time <= ?) OR (status = ? AND vote_end_time <= ?)",
			models.StatusRecruiting, now,
			models.StatusBidding, now,
			models.StatusVoting, now).
		Order("id ASC").
		Pluck("id", &due).Error
	if err != nil {
		sweepRuns.WithLabelValues("error").Inc()
		return report, storeError("evaluate deadlines", err)
	}

	var errs []error
	for _, id := range due {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		fired, err := e.applyDeadline(ctx, id)
		switch {
		case errors.Is(err, ErrInvalidState):
			report.Skipped++
		case err != nil:
			report.Failed++
			errs = append(errs, err)
			utils.ErrorLogger.WithFields(logrus.Fields{"campaign_id": id}).WithError(err).Error("deadline transition failed")
		case fired:
			report.Transitions++
		default:
			report.Skipped++
		}
	}

	sent, err := e.sendVoteReminders(ctx)
	report.Reminders = sent
	if err != nil {
		errs = append(errs, err)
	}

	outcome := "ok"
	if len(errs) > 0 {
		outcome = "error"
	}
	sweepRuns.WithLabelValues(outcome).Inc()
	if report.Transitions > 0 || report.Reminders > 0 {
		utils.InfoLogger.WithFields(logrus.Fields{
			"transitions": report.Transitions,
			"skipped":     report.Skipped,
			"failed":      report.Failed,
			"reminders":   report.Reminders,
		}).Info("deadline sweep")
	}
	return report, errors.Join(errs...)
}

// applyDeadline re-reads the campaign inside its transaction and fires the
// event its current status calls for.
func (e *Engine) applyDeadline(ctx context.Context, id uint) (bool, error) {
	fired := false
	err := e.inTx(ctx, fmt.Sprintf("deadline campaign %d", id), func(t *txn) error {
		c, err := loadCampaign(t.tx.Clauses(clause.Locking{Strength: "UPDATE"}), id)
		if err != nil {
			return err
		}

		var ev Event
		switch c.Status {
		case models.StatusRecruiting:
			if c.AuctionStartTime == nil || t.now.Before(*c.AuctionStartTime) {
				return nil
			}
			ev = EventCancel
			if c.CurrentParticipants >= c.MinParticipants {
				ev = EventOpenAuction
			}
		case models.StatusBidding:
			if c.AuctionEndTime == nil || t.now.Before(*c.AuctionEndTime) {
				return nil
			}
			n, err := bidCount(t, c.ID)
			if err != nil {
				return err
			}
			ev = EventCancel
			if n > 0 {
				ev = EventCloseAuction
			}
		case models.StatusVoting:
			if c.VoteEndTime == nil || t.now.Before(*c.VoteEndTime) {
				return nil
			}
			met, err := thresholdMet(t, c)
			if err != nil {
				return err
			}
			ev = EventCancel
			if met {
				ev = EventConfirm
			}
		default:
			return nil
		}

		if err := e.fire(t, c, ev, nil, ""); err != nil {
			return err
		}
		fired = true
		return nil
	})
	return fired, err
}

// sendVoteReminders notifies participants who have not voted once a vote is
// about to close. Each campaign is reminded once.
func (e *Engine) sendVoteReminders(ctx context.Context) (int, error) {
	now := e.now()
	var ids []uint
	err := e.db.WithContext(ctx).Model(&models.Campaign{}).
		Where("status = ? AND vote_reminder_sent = ? AND vote_end_time > ? AND vote_end_time <= ?",
			models.StatusVoting, false, now, now.Add(e.opts.VoteReminderWindow)).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, storeError("vote reminders", err)
	}

	sent := 0
	var errs []error
	for _, id := range ids {
		reminded := 0
		err := e.inTx(ctx, fmt.Sprintf("vote reminder campaign %d", id), func(t *txn) error {
			res := t.tx.Model(&models.Campaign{}).
				Where("id = ? AND status = ? AND vote_reminder_sent = ?", id, models.StatusVoting, false).
				UpdateColumn("vote_reminder_sent", true)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}
			c, err := loadCampaign(t.tx, id)
			if err != nil {
				return err
			}

			var pending []uint
			if err := t.tx.Model(&models.Participant{}).
				Where("campaign_id = ? AND user_id NOT IN (?)", id,
					t.tx.Model(&models.Vote{}).Select("user_id").Where("campaign_id = ?", id)).
				Order("id ASC").
				Pluck("user_id", &pending).Error; err != nil {
				return err
			}
			if len(pending) == 0 {
				return nil
			}
			votes := c.CurrentParticipants - len(pending)
			n, err := voteReminderNotification(c, votes, c.CurrentParticipants)
			if err != nil {
				return err
			}
			reminded = len(pending)
			return t.notify(pending, n)
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		sent += reminded
	}
	return sent, errors.Join(errs...)
}
