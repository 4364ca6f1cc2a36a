package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	driver "github.com/go-sql-driver/mysql"

	"costamar_booking/internal/domain"
)

// Ledger is the MySQL-backed payment ledger.
type Ledger struct{ db *sql.DB }

func NewLedger(db *sql.DB) *Ledger { return &Ledger{db: db} }

// Insert appends a statement row, deduplicated on the (source, reference)
// natural key. Returns true when a new row was written. This is the
// write path the ledger-sync collaborator drives.
func (l *Ledger) Insert(ctx context.Context, p domain.PaymentRecord) (bool, error) {
	res, err := l.db.ExecContext(ctx, insertPaymentSQL,
		string(p.Source), p.Reference, p.Credit, p.PaidAt)
	if err != nil {
		var me *driver.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return false, nil
		}
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// requiredFor applies the per-source coverage rule: bank transfers must
// cover the booking in full, card authorizations may cover half (partial
// deposit tolerated).
func requiredFor(source domain.PaymentSource, required int64) int64 {
	if source == domain.SourceCard {
		return required / 2
	}
	return required
}

// Validate locates a matching record with enough open balance. Read-only
// except for the orphan reset: a record reserved earlier but never tagged
// with a booking reference is treated as abandoned and its used amount
// cleared before re-evaluating. The reset only fires on rows idle past
// the grace period, so a reservation still between reserve and commit
// keeps its hold.
func (l *Ledger) Validate(ctx context.Context, c domain.MatchCriteria, required int64) (domain.PaymentRecord, int64, error) {
	rec, err := l.find(ctx, c)
	if err != nil {
		return domain.PaymentRecord{}, 0, err
	}
	threshold := requiredFor(rec.Source, required)
	if rec.Available() < threshold && rec.Used > 0 && rec.BookingRef == nil {
		if err := l.ResetOrphan(ctx, rec.ID); err != nil {
			return domain.PaymentRecord{}, 0, err
		}
		rec, err = l.find(ctx, c)
		if err != nil {
			return domain.PaymentRecord{}, 0, err
		}
	}
	if rec.Available() < threshold {
		return rec, rec.Available(), domain.ErrInsufficientBalance
	}
	return rec, rec.Available(), nil
}

func (l *Ledger) find(ctx context.Context, c domain.MatchCriteria) (domain.PaymentRecord, error) {
	var row *sql.Row
	if c.Reference != "" {
		row = l.db.QueryRowContext(ctx, findByReferenceSQL, string(c.Source), c.Reference)
	} else {
		slack := c.DateSlack
		if slack == 0 {
			slack = 24 * time.Hour
		}
		row = l.db.QueryRowContext(ctx, findByAmountDateSQL,
			string(c.Source), c.Amount, c.PaidOn.Add(-slack), c.PaidOn.Add(slack))
	}
	return scanPayment(row)
}

func scanPayment(row *sql.Row) (domain.PaymentRecord, error) {
	var p domain.PaymentRecord
	var source string
	var bookingRef sql.NullString
	if err := row.Scan(&p.ID, &source, &p.Reference, &p.Credit, &p.Used,
		&bookingRef, &p.PaidAt, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PaymentRecord{}, domain.ErrPaymentNotFound
		}
		return domain.PaymentRecord{}, err
	}
	p.Source = domain.PaymentSource(source)
	if bookingRef.Valid {
		r := bookingRef.String
		p.BookingRef = &r
	}
	return p, nil
}

// Reserve commits part of a record's balance to a booking. The
// conditional UPDATE is the compare-and-increment: zero rows affected
// means the balance no longer covers the amount (or the row vanished).
func (l *Ledger) Reserve(ctx context.Context, recordID int64, amount int64) error {
	res, err := l.db.ExecContext(ctx, reserveSQL, amount, recordID, amount)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists int
	err = l.db.QueryRowContext(ctx, existsPaymentSQL, recordID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return domain.ErrInsufficientBalance
}

func (l *Ledger) AttachBookingRef(ctx context.Context, recordID int64, ref string) error {
	_, err := l.db.ExecContext(ctx, attachBookingRefSQL, ref, recordID)
	return err
}

func (l *Ledger) ResetOrphan(ctx context.Context, recordID int64) error {
	_, err := l.db.ExecContext(ctx, resetOrphanSQL, recordID)
	return err
}
