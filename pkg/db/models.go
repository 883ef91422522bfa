package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// StrategyInstance represents a configured strategy row.
type StrategyInstance struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	StrategyType string    `json:"strategy_type"`
	Symbols      string    `json:"symbols"` // comma separated
	Interval     string    `json:"interval"`
	Parameters   string    `json:"parameters"` // JSON object
	IsActive     bool      `json:"is_active"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SignalRecord is one evaluated instrument at one tick.
type SignalRecord struct {
	ID                 int64     `json:"id"`
	StrategyInstanceID string    `json:"strategy_id"`
	Symbol             string    `json:"symbol"`
	Direction          int       `json:"direction"`
	RSI                float64   `json:"rsi"`
	Weight             float64   `json:"weight"`
	Note               string    `json:"note"`
	CreatedAt          time.Time `json:"created_at"`
}

// Order represents a paper order stored in the DB.
type Order struct {
	ID                 string    `json:"id"`
	StrategyInstanceID string    `json:"strategy_id"`
	Symbol             string    `json:"symbol"`
	Side               string    `json:"side"`
	Price              float64   `json:"price"`
	Qty                float64   `json:"qty"`
	FilledQty          float64   `json:"filled_qty"`
	TargetWeight       float64   `json:"target_weight"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
}

// Trade represents a fill stored in the DB.
type Trade struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Qty       float64   `json:"qty"`
	Fee       float64   `json:"fee"`
	CreatedAt time.Time `json:"created_at"`
}

// Position tracks the net holding of one strategy in one symbol.
type Position struct {
	StrategyID  string    `json:"strategy_id"`
	Symbol      string    `json:"symbol"`
	Qty         float64   `json:"qty"`
	AvgPrice    float64   `json:"avg_price"`
	RealizedPnL float64   `json:"realized_pnl"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EquitySnapshot is the paper account value at a point in time.
type EquitySnapshot struct {
	StrategyID string    `json:"strategy_id"`
	Equity     float64   `json:"equity"`
	Cash       float64   `json:"cash"`
	CreatedAt  time.Time `json:"created_at"`
}

// UpsertStrategyInstance inserts or refreshes a strategy row. The runtime
// status column is left untouched on update.
func (d *Database) UpsertStrategyInstance(ctx context.Context, s StrategyInstance) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO strategy_instances (id, name, strategy_type, symbols, interval, parameters, is_active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			strategy_type = excluded.strategy_type,
			symbols = excluded.symbols,
			interval = excluded.interval,
			parameters = excluded.parameters,
			is_active = excluded.is_active,
			updated_at = CURRENT_TIMESTAMP
	`, s.ID, s.Name, s.StrategyType, s.Symbols, s.Interval, s.Parameters, s.IsActive)
	return err
}

// SetStrategyStatus records ACTIVE or PAUSED for a strategy.
func (d *Database) SetStrategyStatus(ctx context.Context, id, status string) error {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE strategy_instances SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSignal(ctx context.Context, ex execer, s SignalRecord) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO signals (strategy_instance_id, symbol, direction, rsi, weight, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.StrategyInstanceID, s.Symbol, s.Direction, s.RSI, s.Weight, s.Note, s.CreatedAt)
	return err
}

// InsertSignal appends a signal row.
func (d *Database) InsertSignal(ctx context.Context, s SignalRecord) error {
	return insertSignal(ctx, d.DB, s)
}

// InsertSignals appends rows in a single transaction; either all rows are
// written or none.
func (d *Database) InsertSignals(ctx context.Context, recs []SignalRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	for _, s := range recs {
		if err := insertSignal(ctx, tx, s); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// CreateOrder inserts a new order row.
func (d *Database) CreateOrder(ctx context.Context, o Order) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO orders (
			id, strategy_instance_id, symbol, side, price, qty, filled_qty, target_weight, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.ID, o.StrategyInstanceID, o.Symbol, o.Side, o.Price, o.Qty, o.FilledQty, o.TargetWeight, o.Status, o.CreatedAt,
	)
	return err
}

// UpdateOrderFill sets status, filled quantity and fill price.
func (d *Database) UpdateOrderFill(ctx context.Context, id, status string, filledQty, price float64) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, filled_qty = ?, price = ?
		WHERE id = ?
	`, status, filledQty, price, id)
	return err
}

// CreateTrade inserts a new trade row.
func (d *Database) CreateTrade(ctx context.Context, t Trade) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (
			id, order_id, symbol, side, price, qty, fee, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.OrderID, t.Symbol, t.Side, t.Price, t.Qty, t.Fee, t.CreatedAt,
	)
	return err
}

// UpsertPosition stores the latest position of a strategy in a symbol.
func (d *Database) UpsertPosition(ctx context.Context, p Position) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO positions (strategy_instance_id, symbol, qty, avg_price, realized_pnl, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(strategy_instance_id, symbol) DO UPDATE SET
			qty = excluded.qty,
			avg_price = excluded.avg_price,
			realized_pnl = excluded.realized_pnl,
			updated_at = excluded.updated_at
	`, p.StrategyID, p.Symbol, p.Qty, p.AvgPrice, p.RealizedPnL, p.UpdatedAt)
	return err
}

// InsertEquity records an account valuation.
func (d *Database) InsertEquity(ctx context.Context, e EquitySnapshot) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO equity_snapshots (strategy_instance_id, equity, cash, created_at) VALUES (?, ?, ?, ?)
	`, e.StrategyID, e.Equity, e.Cash, e.CreatedAt)
	return err
}
