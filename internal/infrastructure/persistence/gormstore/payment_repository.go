package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/domain/payment"
)

type paymentRecord struct {
	ID              string          `gorm:"type:char(36);primaryKey"`
	UserID          string          `gorm:"type:varchar(64);not null;default:''"`
	ExternalID      *string         `gorm:"type:varchar(128);uniqueIndex:ux_payments_external_id"`
	Reference       string          `gorm:"type:varchar(128);not null;index:ix_payments_reference,priority:1"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Currency        string          `gorm:"type:char(3);not null"`
	StatusCode      string          `gorm:"type:varchar(16);not null"`
	StatusText      string          `gorm:"type:varchar(64);not null"`
	StatusCanonical string          `gorm:"type:varchar(16);not null;index:ix_payments_stale,priority:1"`
	PaymentMethod   datatypes.JSON  `gorm:"type:json"`
	PaymentData     datatypes.JSON  `gorm:"type:json"`
	Items           datatypes.JSON  `gorm:"type:json;not null"`
	CreatedAt       time.Time       `gorm:"not null;index:ix_payments_reference,priority:2"`
	UpdatedAt       time.Time       `gorm:"not null;index:ix_payments_stale,priority:2"`
}

func (paymentRecord) TableName() string { return "payments" }

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	rec, err := toRecord(p)
	if err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isDup(err) {
			return payment.ErrDuplicate
		}
		return err
	}

	p.CreatedAt, p.UpdatedAt = rec.CreatedAt, rec.UpdatedAt
	return nil
}

func (r *PaymentRepository) CreateIfAbsent(ctx context.Context, p *payment.Payment) (bool, error) {
	err := r.Create(ctx, p)
	if errors.Is(err, payment.ErrDuplicate) {
		return false, nil
	}
	return err == nil, err
}

func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*payment.Payment, error) {
	return r.findOne(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *PaymentRepository) FindByExternalID(ctx context.Context, externalID string) (*payment.Payment, error) {
	if externalID == "" {
		return nil, payment.ErrPaymentNotFound
	}
	return r.findOne(r.db.WithContext(ctx).Where("external_id = ?", externalID))
}

func (r *PaymentRepository) FindByReference(ctx context.Context, reference string) (*payment.Payment, error) {
	if reference == "" {
		return nil, payment.ErrPaymentNotFound
	}
	return r.findOne(r.db.WithContext(ctx).Where("reference = ?", reference).Order("created_at DESC"))
}

func (r *PaymentRepository) findOne(q *gorm.DB) (*payment.Payment, error) {
	var rec paymentRecord
	if err := q.Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payment.ErrPaymentNotFound
		}
		return nil, err
	}
	return fromRecord(&rec)
}

func (r *PaymentRepository) TransitionStatus(ctx context.Context, id, fromCode string, u payment.StatusUpdate) (bool, error) {
	updates := map[string]any{
		"status_code":      u.Status.Code,
		"status_text":      u.Status.Text,
		"status_canonical": string(payment.MapStatus(u.Status.Code)),
		"updated_at":       r.db.NowFunc(),
	}
	if u.PaymentMethod != nil {
		b, err := json.Marshal(u.PaymentMethod)
		if err != nil {
			return false, err
		}
		updates["payment_method"] = datatypes.JSON(b)
	}
	if len(u.PaymentData) > 0 {
		updates["payment_data"] = datatypes.JSON(u.PaymentData)
	}
	if u.ExternalID != "" {
		updates["external_id"] = gorm.Expr("COALESCE(external_id, ?)", u.ExternalID)
	}

	res := r.db.WithContext(ctx).
		Model(&paymentRecord{}).
		Where("id = ? AND status_code = ? AND status_canonical <> ?",
			id, fromCode, string(payment.Approved)).
		Updates(updates)
	if res.Error != nil {
		if isDup(res.Error) {
			return false, payment.ErrDuplicate
		}
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	var n int64
	if err := r.db.WithContext(ctx).Model(&paymentRecord{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	if n == 0 {
		return false, payment.ErrPaymentNotFound
	}
	return false, nil
}

func (r *PaymentRepository) FindStale(ctx context.Context, olderThan time.Time, limit int) ([]*payment.Payment, error) {
	q := r.db.WithContext(ctx).
		Where("status_canonical IN ? AND updated_at < ?",
			[]string{string(payment.Created), string(payment.Pending)}, olderThan.UTC()).
		Order("updated_at")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []paymentRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}

	out := make([]*payment.Payment, 0, len(recs))
	for i := range recs {
		p, err := fromRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func toRecord(p *payment.Payment) (*paymentRecord, error) {
	rec := &paymentRecord{
		ID:              p.ID,
		UserID:          p.User,
		Reference:       p.Reference,
		Amount:          p.Amount,
		Currency:        p.Currency,
		StatusCode:      p.Status.Code,
		StatusText:      p.Status.Text,
		StatusCanonical: string(payment.MapStatus(p.Status.Code)),
		CreatedAt:       p.CreatedAt.UTC(),
		UpdatedAt:       p.UpdatedAt.UTC(),
	}
	if p.ExternalID != "" {
		ext := p.ExternalID
		rec.ExternalID = &ext
	}
	if p.PaymentMethod != nil {
		b, err := json.Marshal(p.PaymentMethod)
		if err != nil {
			return nil, err
		}
		rec.PaymentMethod = datatypes.JSON(b)
	}
	if len(p.PaymentData) > 0 {
		rec.PaymentData = datatypes.JSON(p.PaymentData)
	}

	items := p.Items
	if items == nil {
		items = []payment.Item{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	rec.Items = datatypes.JSON(b)

	if rec.UpdatedAt.IsZero() && !rec.CreatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	return rec, nil
}

func fromRecord(rec *paymentRecord) (*payment.Payment, error) {
	p := &payment.Payment{
		ID:        rec.ID,
		User:      rec.UserID,
		Reference: rec.Reference,
		Amount:    rec.Amount,
		Currency:  rec.Currency,
		Status:    payment.Status{Code: rec.StatusCode, Text: rec.StatusText},
		CreatedAt: rec.CreatedAt.UTC(),
		UpdatedAt: rec.UpdatedAt.UTC(),
	}
	if rec.ExternalID != nil {
		p.ExternalID = *rec.ExternalID
	}
	if len(rec.PaymentMethod) > 0 {
		p.PaymentMethod = &payment.Method{}
		if err := json.Unmarshal(rec.PaymentMethod, p.PaymentMethod); err != nil {
			return nil, fmt.Errorf("payment %s: payment_method: %w", rec.ID, err)
		}
	}
	if len(rec.PaymentData) > 0 {
		p.PaymentData = json.RawMessage(rec.PaymentData)
	}
	if err := json.Unmarshal(rec.Items, &p.Items); err != nil {
		return nil, fmt.Errorf("payment %s: items: %w", rec.ID, err)
	}
	return p, nil
}
