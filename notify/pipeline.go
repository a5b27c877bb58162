package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/groupbuy-app/models"
	"github.com/yeremiapane/groupbuy-app/protocol"
	"github.com/yeremiapane/groupbuy-app/utils"
	"gorm.io/gorm"
)

// Pipeline persists notifications and pushes them to live connections.
// Persistence is mandatory; the push is best effort and never retried.
type Pipeline struct {
	db       *gorm.DB
	registry *Registry
}

func NewPipeline(db *gorm.DB, registry *Registry) *Pipeline {
	return &Pipeline{db: db, registry: registry}
}

func (p *Pipeline) Registry() *Registry {
	return p.registry
}

// Deliver writes n and then pushes it to every live connection of n.UserID.
// Only a persistence failure is returned.
func (p *Pipeline) Deliver(ctx context.Context, n *models.Notification) error {
	if err := p.Persist(p.db.WithContext(ctx), n); err != nil {
		return err
	}
	p.Push(n)
	return nil
}

// Persist writes n through db, which may be an open transaction. The caller
// pushes after commit.
func (p *Pipeline) Persist(db *gorm.DB, n *models.Notification) error {
	if err := db.Create(n).Error; err != nil {
		return fmt.Errorf("persist notification for user %d: %w", n.UserID, err)
	}
	return nil
}

// Push sends an already persisted notification to the recipient's live
// connections. A failed send drops that connection; nothing is retried.
// Callers holding a transaction push only after it committed, so this is
// where a stored notification is counted.
func (p *Pipeline) Push(n *models.Notification) {
	notificationsPersisted.WithLabelValues(string(n.Type)).Inc()
	conns := p.registry.ConnectionsFor(n.UserID)
	if len(conns) == 0 {
		return
	}

	frame, err := protocol.Encode(protocol.TypeNotification, n)
	if err != nil {
		utils.ErrorLogger.Printf("Error marshaling notification %d: %v", n.ID, err)
		return
	}

	for _, conn := range conns {
		if err := conn.Send(frame); err != nil {
			pushFailures.Inc()
			utils.ErrorLogger.WithFields(logrus.Fields{
				"user_id":         n.UserID,
				"notification_id": n.ID,
			}).Printf("push failed, dropping connection: %v", err)
			p.registry.Unregister(conn)
			_ = conn.Close()
			continue
		}
		notificationsPushed.Inc()
	}
}

// DeliverBroadcast delivers a copy of tmpl to each user. A failure for one
// user does not stop delivery to the rest; all failures are joined.
func (p *Pipeline) DeliverBroadcast(ctx context.Context, tmpl models.Notification, userIDs []uint) error {
	var errs []error
	for _, userID := range userIDs {
		n := tmpl
		n.UserID = userID
		if err := p.Deliver(ctx, &n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
