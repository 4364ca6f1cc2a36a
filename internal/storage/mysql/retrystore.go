package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	driver "github.com/go-sql-driver/mysql"

	"costamar_booking/internal/domain"
)

// RetryStore persists RetryState rows with optimistic versioning, so
// read-modify-write cycles stay safe under restarts and multiple workers.
type RetryStore struct{ db *sql.DB }

func NewRetryStore(db *sql.DB) *RetryStore { return &RetryStore{db: db} }

func (r *RetryStore) Save(ctx context.Context, s *domain.RetryState) error {
	reqJSON, err := json.Marshal(s.Request)
	if err != nil {
		return fmt.Errorf("marshal retry request: %w", err)
	}
	if s.Version == 0 {
		_, err := r.db.ExecContext(ctx, insertRetrySQL,
			s.CustomerKey, int(s.Stage), s.Attempts, string(reqJSON),
			s.Escalated, s.Distress, s.ClarificationSent)
		if err != nil {
			var me *driver.MySQLError
			if errors.As(err, &me) && me.Number == 1062 {
				return domain.ErrStaleState
			}
			return err
		}
		s.Version = 1
		return nil
	}
	res, err := r.db.ExecContext(ctx, updateRetrySQL,
		int(s.Stage), s.Attempts, string(reqJSON), s.Escalated, s.Distress,
		s.ClarificationSent, s.CustomerKey, s.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrStaleState
	}
	s.Version++
	return nil
}

func (r *RetryStore) Load(ctx context.Context, customerKey string) (domain.RetryState, error) {
	return scanRetry(r.db.QueryRowContext(ctx, loadRetrySQL, customerKey))
}

func (r *RetryStore) Delete(ctx context.Context, customerKey string) error {
	_, err := r.db.ExecContext(ctx, deleteRetrySQL, customerKey)
	return err
}

func (r *RetryStore) ListPending(ctx context.Context) ([]domain.RetryState, error) {
	rows, err := r.db.QueryContext(ctx, listPendingRetrySQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RetryState
	for rows.Next() {
		s, err := scanRetryRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanRetry(row *sql.Row) (domain.RetryState, error) {
	s, err := scanRetryRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RetryState{}, domain.ErrNotFound
	}
	return s, err
}

func scanRetryRows(row rowScanner) (domain.RetryState, error) {
	var s domain.RetryState
	var stage int
	var reqJSON []byte
	if err := row.Scan(&s.CustomerKey, &stage, &s.Attempts, &reqJSON,
		&s.Escalated, &s.Distress, &s.ClarificationSent, &s.Version,
		&s.CreatedAt, &s.UpdatedAt); err != nil {
		return domain.RetryState{}, err
	}
	s.Stage = domain.RetryStage(stage)
	if err := json.Unmarshal(reqJSON, &s.Request); err != nil {
		return domain.RetryState{}, fmt.Errorf("unmarshal retry request: %w", err)
	}
	return s, nil
}
