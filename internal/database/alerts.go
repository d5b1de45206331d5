package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"ramzinex-alert-bot/internal/types"
)

type alertRow struct {
	UserID            int64               `db:"user_id"`
	Symbol            string              `db:"symbol"`
	MarketID          int64               `db:"market_id"`
	ThresholdPercent  decimal.Decimal     `db:"threshold_percent"`
	LastNotifiedPrice decimal.NullDecimal `db:"last_notified_price"`
	CreatedAt         int64               `db:"created_at"`
	UpdatedAt         int64               `db:"updated_at"`
	Version           int64               `db:"version"`
}

func (r alertRow) rule() types.AlertRule {
	return types.AlertRule{
		UserID:            r.UserID,
		Instrument:        types.Instrument{Symbol: r.Symbol, MarketID: r.MarketID},
		ThresholdPercent:  r.ThresholdPercent,
		LastNotifiedPrice: r.LastNotifiedPrice,
		CreatedAt:         time.UnixMilli(r.CreatedAt),
		UpdatedAt:         time.UnixMilli(r.UpdatedAt),
		Version:           r.Version,
	}
}

const selectAlerts = `SELECT user_id, symbol, market_id, threshold_percent, last_notified_price, created_at, updated_at, version FROM alerts`

// UpsertAlert creates the rule or replaces the existing rule for the same
// (user, symbol) pair, including its baseline and creation time. Replacing
// a rule bumps its version.
func (s *Store) UpsertAlert(ctx context.Context, rule types.AlertRule) error {
	query := s.db.Rebind(`
	INSERT INTO alerts (user_id, symbol, market_id, threshold_percent, last_notified_price, created_at, updated_at, version)
	VALUES (?, ?, ?, ?, ?, ?, ?, 1)
	ON CONFLICT (user_id, symbol) DO UPDATE SET
		market_id = excluded.market_id,
		threshold_percent = excluded.threshold_percent,
		last_notified_price = excluded.last_notified_price,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		version = alerts.version + 1;`)

	_, err := s.db.ExecContext(ctx, query,
		rule.UserID,
		rule.Instrument.Symbol,
		rule.Instrument.MarketID,
		rule.ThresholdPercent.String(),
		nullablePrice(rule.LastNotifiedPrice),
		rule.CreatedAt.UnixMilli(),
		rule.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert alert")
	}

	log.Debugf("Alert saved: user %d, symbol %s, threshold %s%%", rule.UserID, rule.Instrument.Symbol, rule.ThresholdPercent)
	return nil
}

// DeleteAlert removes a rule and reports whether it existed.
func (s *Store) DeleteAlert(ctx context.Context, userID int64, symbol string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM alerts WHERE user_id = ? AND symbol = ?;`), userID, symbol)
	if err != nil {
		return false, errors.Wrap(err, "failed to delete alert")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to delete alert")
	}
	return n > 0, nil
}

// GetAllAlerts fetches every rule.
func (s *Store) GetAllAlerts(ctx context.Context) ([]types.AlertRule, error) {
	var rows []alertRow
	if err := s.db.SelectContext(ctx, &rows, selectAlerts+` ORDER BY user_id, symbol;`); err != nil {
		return nil, errors.Wrap(err, "failed to query alerts")
	}
	return toRules(rows), nil
}

// GetAlertsByUser fetches the rules of a single user.
func (s *Store) GetAlertsByUser(ctx context.Context, userID int64) ([]types.AlertRule, error) {
	var rows []alertRow
	query := s.db.Rebind(selectAlerts + ` WHERE user_id = ? ORDER BY symbol;`)
	if err := s.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, errors.Wrapf(err, "failed to query alerts for user %d", userID)
	}
	return toRules(rows), nil
}

// UpdateBaseline sets the last notified price of a rule, but only if the
// rule has not been replaced since it was read, which is told by the
// version rather than the clock. It returns false when no row matched.
func (s *Store) UpdateBaseline(ctx context.Context, rule types.AlertRule, price decimal.Decimal, at time.Time) (bool, error) {
	query := s.db.Rebind(`
	UPDATE alerts SET last_notified_price = ?, updated_at = ?
	WHERE user_id = ? AND symbol = ? AND version = ?;`)

	res, err := s.db.ExecContext(ctx, query,
		price.String(),
		at.UnixMilli(),
		rule.UserID,
		rule.Instrument.Symbol,
		rule.Version,
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to update baseline")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to update baseline")
	}
	return n > 0, nil
}

func toRules(rows []alertRow) []types.AlertRule {
	rules := make([]types.AlertRule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, row.rule())
	}
	return rules
}

func nullablePrice(p decimal.NullDecimal) interface{} {
	if !p.Valid {
		return nil
	}
	return p.Decimal.String()
}
