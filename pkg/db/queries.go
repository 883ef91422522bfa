package db

import (
	"context"
	"database/sql"
	"fmt"
)

const defaultLimit = 100

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return defaultLimit
	}
	return limit
}

// ----------------------------------------
// Strategy Queries
// ----------------------------------------

// ListStrategyInstances returns strategy rows, optionally only the active ones.
func (d *Database) ListStrategyInstances(ctx context.Context, activeOnly bool) ([]StrategyInstance, error) {
	query := `
		SELECT id, name, strategy_type, symbols, interval, parameters, is_active,
		       COALESCE(status, 'ACTIVE'), created_at, updated_at
		FROM strategy_instances`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY id`

	rows, err := d.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query strategies: %w", err)
	}
	defer rows.Close()

	var res []StrategyInstance
	for rows.Next() {
		var s StrategyInstance
		if err := rows.Scan(&s.ID, &s.Name, &s.StrategyType, &s.Symbols, &s.Interval, &s.Parameters,
			&s.IsActive, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan strategy: %w", err)
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// GetStrategyInstance returns one strategy row or ErrNotFound.
func (d *Database) GetStrategyInstance(ctx context.Context, id string) (*StrategyInstance, error) {
	var s StrategyInstance
	err := d.DB.QueryRowContext(ctx, `
		SELECT id, name, strategy_type, symbols, interval, parameters, is_active,
		       COALESCE(status, 'ACTIVE'), created_at, updated_at
		FROM strategy_instances WHERE id = ?
	`, id).Scan(&s.ID, &s.Name, &s.StrategyType, &s.Symbols, &s.Interval, &s.Parameters,
		&s.IsActive, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query strategy: %w", err)
	}
	return &s, nil
}

// ----------------------------------------
// Signal Queries
// ----------------------------------------

// ListSignals returns the newest signals first. Empty strategyID means all.
func (d *Database) ListSignals(ctx context.Context, strategyID string, limit int) ([]SignalRecord, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, strategy_instance_id, symbol, direction, COALESCE(rsi, 0), COALESCE(weight, 0),
		       COALESCE(note, ''), created_at
		FROM signals
		WHERE (? = '' OR strategy_instance_id = ?)
		ORDER BY id DESC
		LIMIT ?
	`, strategyID, strategyID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var res []SignalRecord
	for rows.Next() {
		var s SignalRecord
		if err := rows.Scan(&s.ID, &s.StrategyInstanceID, &s.Symbol, &s.Direction, &s.RSI, &s.Weight, &s.Note, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// ----------------------------------------
// Order / Position Queries
// ----------------------------------------

// ListOrders returns the newest orders first.
func (d *Database) ListOrders(ctx context.Context, limit int) ([]Order, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, COALESCE(strategy_instance_id, ''), symbol, side, price, qty,
		       COALESCE(filled_qty, 0), COALESCE(target_weight, 0), status, created_at
		FROM orders
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var res []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.StrategyInstanceID, &o.Symbol, &o.Side, &o.Price, &o.Qty,
			&o.FilledQty, &o.TargetWeight, &o.Status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// ListTradesByOrder returns fills for an order.
func (d *Database) ListTradesByOrder(ctx context.Context, orderID string) ([]Trade, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, order_id, symbol, side, price, qty, COALESCE(fee, 0), created_at
		FROM trades WHERE order_id = ?
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var res []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Symbol, &t.Side, &t.Price, &t.Qty, &t.Fee, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ListPositions returns non-flat positions. Empty strategyID means all.
func (d *Database) ListPositions(ctx context.Context, strategyID string) ([]Position, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT strategy_instance_id, symbol, qty, avg_price, COALESCE(realized_pnl, 0), updated_at
		FROM positions
		WHERE qty != 0 AND (? = '' OR strategy_instance_id = ?)
		ORDER BY strategy_instance_id, symbol
	`, strategyID, strategyID)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var res []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.StrategyID, &p.Symbol, &p.Qty, &p.AvgPrice, &p.RealizedPnL, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ListEquity returns the latest equity snapshots of a strategy, oldest first.
func (d *Database) ListEquity(ctx context.Context, strategyID string, limit int) ([]EquitySnapshot, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT strategy_instance_id, equity, cash, created_at
		FROM equity_snapshots
		WHERE (? = '' OR strategy_instance_id = ?)
		ORDER BY id DESC LIMIT ?
	`, strategyID, strategyID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query equity: %w", err)
	}
	defer rows.Close()

	var res []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.StrategyID, &e.Equity, &e.Cash, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan equity: %w", err)
		}
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
		res[i], res[j] = res[j], res[i]
	}
	return res, nil
}
