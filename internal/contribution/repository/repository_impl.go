package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallparish/offertory/internal/contribution/domain"
	pkgdb "github.com/smallparish/offertory/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByGatewayPaymentID(ctx context.Context, db *gorm.DB, gatewayPaymentID string) (*domain.Contribution, error) {
	var item domain.Contribution
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, person_id, fund_id, donor_name, donor_email,
			amount_cents, currency, payment_method, payment_status,
			gateway_payment_id, is_recurring, subscription_id,
			receipt_sent_at, processed_at, created_at, updated_at
		 FROM contributions
		 WHERE gateway_payment_id = ?
		 LIMIT 1`,
		gatewayPaymentID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, contribution *domain.Contribution) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO contributions (
			id, tenant_id, person_id, fund_id, donor_name, donor_email,
			amount_cents, currency, payment_method, payment_status,
			gateway_payment_id, is_recurring, subscription_id,
			receipt_sent_at, processed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (gateway_payment_id) DO NOTHING`,
		contribution.ID,
		contribution.TenantID,
		contribution.PersonID,
		contribution.FundID,
		contribution.DonorName,
		contribution.DonorEmail,
		contribution.AmountCents,
		contribution.Currency,
		contribution.PaymentMethod,
		contribution.PaymentStatus,
		contribution.GatewayPaymentID,
		contribution.IsRecurring,
		contribution.SubscriptionID,
		contribution.ReceiptSentAt,
		contribution.ProcessedAt,
		contribution.CreatedAt,
		contribution.UpdatedAt,
	)
	if res.Error != nil {
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE contributions
		 SET payment_status = ?, processed_at = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		processedAt,
		processedAt,
		id,
	).Error
}

func (r *repo) FailPendingBySubscription(ctx context.Context, db *gorm.DB, subscriptionID string, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE contributions
		 SET payment_status = ?, processed_at = ?, updated_at = ?
		 WHERE subscription_id = ? AND payment_status = ?`,
		domain.StatusFailed,
		at,
		at,
		subscriptionID,
		domain.StatusPending,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) MarkReceiptSent(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE contributions
		 SET receipt_sent_at = ?, updated_at = ?
		 WHERE id = ? AND receipt_sent_at IS NULL`,
		at,
		at,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
