package models

import (
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

const (
	ActionStatusStarted   = "STARTED"
	ActionStatusSucceeded = "SUCCEEDED"
	ActionStatusFailed    = "FAILED"
)

var ErrActionInProgress = errors.New("action in progress")

// ActionKey makes order-item actions idempotent: a replayed or duplicated
// action (client retry, redelivered push confirmation) is detected by its
// message id and skipped instead of applied twice.
type ActionKey struct {
	ID          int       `gorm:"primary_key"`
	HandlerName string    `gorm:"size:50;uniqueIndex:idx_action_key;not null"`
	MessageId   string    `gorm:"size:100;uniqueIndex:idx_action_key;not null"`
	Status      string    `gorm:"size:20;not null"`
	LastError   *string   `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// BeginAction inserts STARTED. If SUCCEEDED exists, returns (true, nil)
// meaning "skip safely".
func BeginAction(tx *gorm.DB, handlerName, messageId string) (skip bool, err error) {
	key := ActionKey{
		HandlerName: handlerName,
		MessageId:   messageId,
		Status:      ActionStatusStarted,
	}
	if err := tx.Create(&key).Error; err == nil {
		return false, nil
	} else if !isDuplicateKeyErr(err) {
		return false, err
	}

	var existing ActionKey
	if err := tx.Where("handler_name = ? AND message_id = ?", handlerName, messageId).
		First(&existing).Error; err != nil {
		return false, err
	}

	switch existing.Status {
	case ActionStatusSucceeded:
		return true, nil
	case ActionStatusStarted:
		// Another request is processing; stale rows get retried.
		if time.Since(existing.UpdatedAt) < 5*time.Minute {
			return false, ErrActionInProgress
		}
		return false, tx.Model(&ActionKey{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{"status": ActionStatusStarted, "last_error": nil}).Error
	default:
		return false, tx.Model(&ActionKey{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{"status": ActionStatusStarted, "last_error": nil}).Error
	}
}

func FinishAction(tx *gorm.DB, handlerName, messageId string, actionErr error) error {
	updates := map[string]interface{}{"status": ActionStatusSucceeded, "last_error": nil}
	if actionErr != nil {
		msg := actionErr.Error()
		updates["status"] = ActionStatusFailed
		updates["last_error"] = &msg
	}
	return tx.Model(&ActionKey{}).
		Where("handler_name = ? AND message_id = ?", handlerName, messageId).
		Updates(updates).Error
}
