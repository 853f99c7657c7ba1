// Package billing keeps per-user credit balances. A run checks funds before
// it starts and is charged once when it finishes.
package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	hsotel "github.com/CogitoSoftwareOrg/hackseeker/internal/otel"
)

var tracer = hsotel.Tracer("github.com/CogitoSoftwareOrg/hackseeker/internal/billing")

var meter = otel.Meter("github.com/CogitoSoftwareOrg/hackseeker/internal/billing")

var chargesTotal, _ = meter.Int64Counter("hackseeker.billing.charges",
	metric.WithDescription("Credits charged"))

var (
	// ErrInsufficientBalance is returned when a user has no credits left.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidAmount is returned for non-positive charges or grants.
	ErrInvalidAmount = errors.New("amount must be positive")
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    user_id TEXT PRIMARY KEY,
    balance INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    delta INTEGER NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    reference TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_user ON ledger_entries(user_id, created_at);
`

// Entry is one balance movement.
type Entry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Delta     int64     `json:"delta"`
	Reason    string    `json:"reason"`
	Reference string    `json:"reference"`
	CreatedAt time.Time `json:"created_at"`
}

// Ledger stores balances in SQLite. Users unseen so far start with the
// configured initial credits.
type Ledger struct {
	db             *sql.DB
	initialCredits int64
	now            func() time.Time
}

// NewLedger opens (or creates) the billing database at dbPath.
func NewLedger(dbPath string, initialCredits int64) (*Ledger, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening billing database: %w", err)
	}
	// one writer keeps read-modify-write balance updates serialized
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating billing schema: %w", err)
	}
	return &Ledger{db: db, initialCredits: initialCredits, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Balance returns the user's remaining credits.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	var bal int64
	err := l.db.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE user_id = ?`, userID).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return l.initialCredits, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading balance: %w", err)
	}
	return bal, nil
}

// EnsureFunds fails with ErrInsufficientBalance when the user has nothing left.
func (l *Ledger) EnsureFunds(ctx context.Context, userID string) error {
	bal, err := l.Balance(ctx, userID)
	if err != nil {
		return err
	}
	if bal <= 0 {
		return fmt.Errorf("%w: user %s has %d credits", ErrInsufficientBalance, userID, bal)
	}
	return nil
}

// Charge debits amount. The balance may go negative: a run that was allowed
// to start is always billed in full.
func (l *Ledger) Charge(ctx context.Context, userID string, amount int64, reason, reference string) (int64, error) {
	ctx, span := tracer.Start(ctx, "billing.charge", trace.WithAttributes(
		hsotel.UserID.String(userID),
		attribute.Int64("billing.amount", amount),
		attribute.String("billing.reason", reason),
	))
	defer span.End()

	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	bal, err := l.apply(ctx, userID, -amount, reason, reference)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	chargesTotal.Add(ctx, amount, metric.WithAttributes(attribute.String("reason", reason)))
	log.Info().Str("user_id", userID).Int64("amount", amount).Int64("balance", bal).Str("reason", reason).Str("reference", reference).Msg("billing_charged")
	return bal, nil
}

// Grant credits amount.
func (l *Ledger) Grant(ctx context.Context, userID string, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	bal, err := l.apply(ctx, userID, amount, reason, "")
	if err != nil {
		return 0, err
	}
	log.Info().Str("user_id", userID).Int64("amount", amount).Int64("balance", bal).Msg("billing_granted")
	return bal, nil
}

// Entries returns the user's most recent ledger entries, newest first.
func (l *Ledger) Entries(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, user_id, delta, reason, reference, created_at FROM ledger_entries
		 WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying ledger entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &e.Reason, &e.Reference, &created); err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		e.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *Ledger) apply(ctx context.Context, userID string, delta int64, reason, reference string) (int64, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := l.now().UnixNano()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (user_id, balance, updated_at) VALUES (?, ?, ?) ON CONFLICT(user_id) DO NOTHING`,
		userID, l.initialCredits, now); err != nil {
		return 0, fmt.Errorf("opening account: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance + ?, updated_at = ? WHERE user_id = ?`, delta, now, userID); err != nil {
		return 0, fmt.Errorf("updating balance: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, user_id, delta, reason, reference, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"led_"+uuid.New().String()[:12], userID, delta, reason, reference, now); err != nil {
		return 0, fmt.Errorf("recording ledger entry: %w", err)
	}
	var bal int64
	if err := tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE user_id = ?`, userID).Scan(&bal); err != nil {
		return 0, fmt.Errorf("reading balance: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing ledger entry: %w", err)
	}
	return bal, nil
}
