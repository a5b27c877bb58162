package lifecycle

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/yeremiapane/groupbuy-app/models"
	"gorm.io/gorm"
)

// Error kinds. Callers classify with errors.Is; messages are wrapped with the
// violated precondition.
var (
	ErrUnauthorized   = errors.New("authentication required")
	ErrForbidden      = errors.New("permission denied")
	ErrNotFound       = errors.New("not found")
	ErrInvalidState   = errors.New("operation not allowed in the current campaign state")
	ErrFull           = errors.New("campaign is full")
	ErrAlreadyJoined  = errors.New("already joined this campaign")
	ErrAlreadyVoted   = errors.New("already voted on this campaign")
	ErrDuplicateKey   = errors.New("duplicate record")
	ErrInvalidInput   = errors.New("invalid input")
	ErrTransientStore = errors.New("record store temporarily unavailable")
)

var domainErrors = []error{
	ErrUnauthorized, ErrForbidden, ErrNotFound, ErrInvalidState, ErrFull,
	ErrAlreadyJoined, ErrAlreadyVoted, ErrDuplicateKey, ErrInvalidInput, ErrTransientStore,
}

// StateError reports an operation rejected by the campaign's lifecycle state.
// It matches ErrInvalidState.
type StateError struct {
	Op      string
	Current models.CampaignStatus
	Reason  string
}

func (e *StateError) Error() string {
	msg := fmt.Sprintf("cannot %s: campaign is %s", e.Op, e.Current)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// CurrentStatus extracts the campaign status from a StateError chain.
func CurrentStatus(err error) (models.CampaignStatus, bool) {
	var se *StateError
	if errors.As(err, &se) {
		return se.Current, true
	}
	return "", false
}

func isDomain(err error) bool {
	for _, k := range domainErrors {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "deadlock") ||
		strings.Contains(msg, "lock wait timeout") ||
		strings.Contains(msg, "connection refused")
}

// storeError classifies a record store failure into a domain kind.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case isDomain(err):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case isDuplicateKey(err):
		return fmt.Errorf("%s: %w", op, ErrDuplicateKey)
	case isTransient(err):
		return fmt.Errorf("%s: %w: %v", op, ErrTransientStore, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
