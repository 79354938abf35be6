package portfolio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/NadavAzoulay124/portfolio.AI/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxMutationRetries bounds how often a read-modify-write is replayed after
// losing its version check to a concurrent writer.
const maxMutationRetries = 3

// Ledger is the durable table of positions keyed by ticker, together with
// the buy/sell/replace mutation logic.
type Ledger struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewLedger creates a new Ledger on top of an opened database.
func NewLedger(db *gorm.DB, logger *zap.Logger) *Ledger {
	return &Ledger{db: db, logger: logger}
}

// NormalizeTicker maps user input to the ledger's key form.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// Get returns the position for a ticker, or nil when none is held.
// The ticker is matched case-insensitively via uppercase normalization.
func (l *Ledger) Get(ticker string) (*models.Position, error) {
	return l.get(NormalizeTicker(ticker))
}

func (l *Ledger) get(ticker string) (*models.Position, error) {
	var pos models.Position
	err := l.db.Where("ticker = ?", ticker).First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load position %s: %w", ticker, err)
	}
	return &pos, nil
}

// List returns every persisted position, ordered by ticker ascending.
func (l *Ledger) List() ([]models.Position, error) {
	var positions []models.Position
	if err := l.db.Order("ticker asc").Find(&positions).Error; err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	return positions, nil
}

// Buy adds qty shares of a ticker. A new position is created when none
// exists, with exec and current price defaulting to each other when only
// one is supplied. On an existing position the prices are overwritten only
// when explicitly supplied. Returns the resulting position.
func (l *Ledger) Buy(ticker string, qty float64, execPrice, currentPrice *float64) (*models.Position, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	t := NormalizeTicker(ticker)

	for attempt := 0; attempt < maxMutationRetries; attempt++ {
		pos, err := l.get(t)
		if err != nil {
			return nil, err
		}

		if pos == nil {
			created := &models.Position{
				Ticker:       t,
				Qty:          qty,
				ExecPrice:    firstNonNil(execPrice, currentPrice),
				CurrentPrice: firstNonNil(currentPrice, execPrice),
			}
			err := l.db.Create(created).Error
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// Lost a create race; replay against the winner's row.
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to create position %s: %w", t, err)
			}
			return created, nil
		}

		updates := map[string]any{"qty": pos.Qty + qty}
		if execPrice != nil {
			updates["exec_price"] = *execPrice
		}
		if currentPrice != nil {
			updates["current_price"] = *currentPrice
		}

		ok, err := l.updateVersioned(pos, updates)
		if err != nil {
			return nil, err
		}
		if ok {
			return l.get(t)
		}
		l.logger.Debug("buy lost version check, retrying", zap.String("ticker", t))
	}
	return nil, ErrConflict
}

// Sell removes qty shares. It fails with ErrInsufficientShares when the
// ticker is not held or holds fewer shares than requested. Selling the
// whole holding deletes the position and returns nil.
func (l *Ledger) Sell(ticker string, qty float64) (*models.Position, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	t := NormalizeTicker(ticker)

	for attempt := 0; attempt < maxMutationRetries; attempt++ {
		pos, err := l.get(t)
		if err != nil {
			return nil, err
		}
		if pos == nil || pos.Qty < qty {
			return nil, ErrInsufficientShares
		}

		remaining := pos.Qty - qty
		if remaining <= 0 {
			ok, err := l.deleteVersioned(pos)
			if err != nil {
				return nil, err
			}
			if ok {
				return nil, nil
			}
		} else {
			ok, err := l.updateVersioned(pos, map[string]any{"qty": remaining})
			if err != nil {
				return nil, err
			}
			if ok {
				return l.get(t)
			}
		}
		l.logger.Debug("sell lost version check, retrying", zap.String("ticker", t))
	}
	return nil, ErrConflict
}

// Replace clears the ledger and loads the given rows inside one
// transaction. Rows sharing a ticker resolve last-write-wins in slice
// order. Tickers are assumed to be normalized already (the importer does).
func (l *Ledger) Replace(rows []models.Position) error {
	err := l.db.Transaction(func(tx *gorm.DB) error {
		// Hard delete: soft-deleted rows would keep holding the ticker
		// unique index against the incoming load.
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(&models.Position{}).Error; err != nil {
			return fmt.Errorf("failed to clear positions: %w", err)
		}
		for i := range rows {
			row := rows[i]
			row.Model = gorm.Model{}
			row.Version = 0
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "ticker"}},
				DoUpdates: clause.AssignmentColumns([]string{"qty", "exec_price", "current_price"}),
			}).Create(&row).Error
			if err != nil {
				return fmt.Errorf("failed to load position %s: %w", row.Ticker, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	l.logger.Info("ledger replaced", zap.Int("rows", len(rows)))
	return nil
}

// updateVersioned applies updates to a position only if its version is
// still the one that was read. Returns false when the check lost.
func (l *Ledger) updateVersioned(pos *models.Position, updates map[string]any) (bool, error) {
	updates["version"] = pos.Version + 1
	res := l.db.Model(&models.Position{}).
		Where("id = ? AND version = ?", pos.ID, pos.Version).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to update position %s: %w", pos.Ticker, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// deleteVersioned removes a position only if its version is still the one
// that was read.
func (l *Ledger) deleteVersioned(pos *models.Position) (bool, error) {
	res := l.db.Unscoped().
		Where("id = ? AND version = ?", pos.ID, pos.Version).
		Delete(&models.Position{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete position %s: %w", pos.Ticker, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func firstNonNil(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}
