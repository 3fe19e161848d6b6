package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/domain/payment"
)

// Fixed-width UTC timestamps so TEXT comparison orders them correctly.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const paymentColumns = `id, user_id, external_id, reference, amount, currency,
	status_code, status_text, payment_method, payment_data, items,
	created_at, updated_at`

type PaymentRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	_, err := r.insert(ctx, "INSERT", p)
	if isUniqueViolation(err) {
		return payment.ErrDuplicate
	}
	return err
}

func (r *PaymentRepository) CreateIfAbsent(ctx context.Context, p *payment.Payment) (bool, error) {
	affected, err := r.insert(ctx, "INSERT OR IGNORE", p)
	if err != nil {
		return false, err
	}

	// 0 rows = another writer inserted the same payment first
	return affected == 1, nil
}

func (r *PaymentRepository) insert(ctx context.Context, verb string, p *payment.Payment) (int64, error) {
	now := r.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}

	method, err := marshalNullable(p.PaymentMethod, p.PaymentMethod == nil)
	if err != nil {
		return 0, err
	}
	items, err := json.Marshal(itemsOrEmpty(p.Items))
	if err != nil {
		return 0, err
	}

	res, err := r.db.ExecContext(ctx,
		verb+` INTO payments
		 (id, user_id, external_id, reference, amount, currency,
		  status_code, status_text, status_canonical,
		  payment_method, payment_data, items, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.User,
		nullString(p.ExternalID),
		p.Reference,
		p.Amount.String(),
		p.Currency,
		p.Status.Code,
		p.Status.Text,
		string(payment.MapStatus(p.Status.Code)),
		method,
		rawOrNull(p.PaymentData),
		string(items),
		p.CreatedAt.UTC().Format(timeLayout),
		p.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*payment.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`,
		id,
	)
	return scanPayment(row)
}

func (r *PaymentRepository) FindByExternalID(ctx context.Context, externalID string) (*payment.Payment, error) {
	if externalID == "" {
		return nil, payment.ErrPaymentNotFound
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE external_id = ?`,
		externalID,
	)
	return scanPayment(row)
}

func (r *PaymentRepository) FindByReference(ctx context.Context, reference string) (*payment.Payment, error) {
	if reference == "" {
		return nil, payment.ErrPaymentNotFound
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE reference = ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		reference,
	)
	return scanPayment(row)
}

func (r *PaymentRepository) TransitionStatus(ctx context.Context, id, fromCode string, u payment.StatusUpdate) (bool, error) {
	method, err := marshalNullable(u.PaymentMethod, u.PaymentMethod == nil)
	if err != nil {
		return false, err
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE payments
		 SET status_code = ?,
		     status_text = ?,
		     status_canonical = ?,
		     payment_method = COALESCE(?, payment_method),
		     payment_data = COALESCE(?, payment_data),
		     external_id = COALESCE(external_id, ?),
		     updated_at = ?
		 WHERE id = ?
		   AND status_code = ?
		   AND status_canonical <> ?`,
		u.Status.Code,
		u.Status.Text,
		string(payment.MapStatus(u.Status.Code)),
		method,
		rawOrNull(u.PaymentData),
		nullString(u.ExternalID),
		r.now().Format(timeLayout),
		id,
		fromCode,
		string(payment.Approved),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, payment.ErrDuplicate
		}
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 1 {
		return true, nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM payments WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	if exists == 0 {
		return false, payment.ErrPaymentNotFound
	}
	return false, nil
}

func (r *PaymentRepository) FindStale(ctx context.Context, olderThan time.Time, limit int) ([]*payment.Payment, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE status_canonical IN (?, ?)
		   AND updated_at < ?
		 ORDER BY updated_at
		 LIMIT ?`,
		string(payment.Created),
		string(payment.Pending),
		olderThan.UTC().Format(timeLayout),
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stale []*payment.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		stale = append(stale, p)
	}

	return stale, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPayment(s scanner) (*payment.Payment, error) {
	var (
		p                    payment.Payment
		externalID           sql.NullString
		method, data         sql.NullString
		amount, items        string
		createdAt, updatedAt string
	)

	if err := s.Scan(
		&p.ID,
		&p.User,
		&externalID,
		&p.Reference,
		&amount,
		&p.Currency,
		&p.Status.Code,
		&p.Status.Text,
		&method,
		&data,
		&items,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, payment.ErrPaymentNotFound
		}
		return nil, err
	}

	var err error
	p.ExternalID = externalID.String
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("payment %s: amount: %w", p.ID, err)
	}
	if method.Valid {
		p.PaymentMethod = &payment.Method{}
		if err := json.Unmarshal([]byte(method.String), p.PaymentMethod); err != nil {
			return nil, fmt.Errorf("payment %s: payment_method: %w", p.ID, err)
		}
	}
	if data.Valid {
		p.PaymentData = json.RawMessage(data.String)
	}
	if err := json.Unmarshal([]byte(items), &p.Items); err != nil {
		return nil, fmt.Errorf("payment %s: items: %w", p.ID, err)
	}
	if p.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("payment %s: created_at: %w", p.ID, err)
	}
	if p.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("payment %s: updated_at: %w", p.ID, err)
	}

	return &p, nil
}

func marshalNullable(v any, isNil bool) (any, error) {
	if isNil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func rawOrNull(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func itemsOrEmpty(items []payment.Item) []payment.Item {
	if items == nil {
		return []payment.Item{}
	}
	return items
}

// Both mattn/go-sqlite3 and modernc.org/sqlite report constraint failures
// with this text.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
