package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"avenor/src/model"
)

// TradeRepository handles all reads and writes of durable trade records. The
// execution service is the sole writer; the unique index on idempotency_key
// is the only concurrency control needed against duplicate-order races.
type TradeRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewTradeRepository creates a repository on the given connection.
func NewTradeRepository(db *gorm.DB) *TradeRepository {
	logger.WithField("component", "TradeRepository").
		Debug("Creating new TradeRepository")

	return &TradeRepository{db: db, now: time.Now}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *TradeRepository) WithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db, now: r.now}
}

// Record inserts a trade, assigning the insertion timestamp. It returns
// false when the idempotency key already exists: that is the documented
// duplicate-suppression path, not an error, and the store is left unchanged.
func (r *TradeRepository) Record(ctx context.Context, trade *model.Trade) (bool, error) {
	log := logger.WithFields(map[string]interface{}{
		"repo":            "TradeRepository",
		"op":              "Record",
		"idempotency_key": trade.IdempotencyKey,
		"symbol":          trade.Symbol,
	})

	trade.TimestampUTC = r.now().UTC()

	err := r.db.WithContext(ctx).Create(trade).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			log.Warn("Duplicate trade ignored")
			return false, nil
		}

		log.WithError(err).Error("Failed to record trade")
		return false, err
	}

	log.WithField("trade_id", trade.ID).Info("Trade recorded")
	return true, nil
}

// UpdateStatus moves an existing trade to a new status. Returns false when
// no trade carries the given key.
func (r *TradeRepository) UpdateStatus(ctx context.Context, idempotencyKey, status string) (bool, error) {
	log := logger.WithFields(map[string]interface{}{
		"repo":            "TradeRepository",
		"op":              "UpdateStatus",
		"idempotency_key": idempotencyKey,
		"status":          status,
	})

	result := r.db.WithContext(ctx).
		Model(&model.Trade{}).
		Where("idempotency_key = ?", idempotencyKey).
		Update("status", status)

	if result.Error != nil {
		log.WithError(result.Error).Error("Failed to update trade status")
		return false, result.Error
	}

	if result.RowsAffected == 0 {
		log.Warn("No trade found to update")
		return false, nil
	}

	log.Info("Trade status updated")
	return true, nil
}

// FindPending returns every trade still in PENDING status. Called by the
// execution service on startup to resolve trades orphaned by a crash.
func (r *TradeRepository) FindPending(ctx context.Context) ([]model.Trade, error) {
	var trades []model.Trade

	err := r.db.WithContext(ctx).
		Where("status = ?", model.StatusPending).
		Order("id").
		Find(&trades).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TradeRepository",
			"op":   "FindPending",
		}).WithError(err).Error("Failed to fetch pending trades")

		return nil, err
	}

	return trades, nil
}

// FindByKey fetches a single trade by idempotency key.
// Returns (nil, nil) if no trade carries the key.
func (r *TradeRepository) FindByKey(ctx context.Context, idempotencyKey string) (*model.Trade, error) {
	var trade model.Trade

	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", idempotencyKey).
		First(&trade).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &trade, nil
}
