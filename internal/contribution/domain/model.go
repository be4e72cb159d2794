package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Status is a contribution's payment lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Contribution is one donation: a one-time gift or a single cycle of a
// recurring subscription. Amounts are integer cents, never floats.
type Contribution struct {
	ID               snowflake.ID  `json:"id" gorm:"primaryKey"`
	TenantID         snowflake.ID  `json:"tenant_id" gorm:"not null;index"`
	PersonID         *snowflake.ID `json:"person_id"`
	FundID           string        `json:"fund_id" gorm:"type:text;not null"`
	DonorName        string        `json:"donor_name" gorm:"type:text"`
	DonorEmail       string        `json:"donor_email" gorm:"type:text"`
	AmountCents      int64         `json:"amount_cents" gorm:"not null"`
	Currency         string        `json:"currency" gorm:"type:text;not null"`
	PaymentMethod    string        `json:"payment_method" gorm:"type:text"`
	PaymentStatus    Status        `json:"payment_status" gorm:"type:text;not null"`
	GatewayPaymentID string        `json:"gateway_payment_id" gorm:"type:text;not null;uniqueIndex:ux_contributions_gateway_payment_id"`
	IsRecurring      bool          `json:"is_recurring" gorm:"not null"`
	SubscriptionID   *string       `json:"subscription_id" gorm:"type:text;index"`
	ReceiptSentAt    *time.Time    `json:"receipt_sent_at"`
	ProcessedAt      *time.Time    `json:"processed_at"`
	CreatedAt        time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time     `json:"updated_at" gorm:"not null"`
}

func (Contribution) TableName() string { return "contributions" }

type Repository interface {
	FindByGatewayPaymentID(ctx context.Context, db *gorm.DB, gatewayPaymentID string) (*Contribution, error)
	// Create performs an insert-if-absent on gateway_payment_id. Returns
	// false when a contribution for that payment already exists, which is
	// how the recurring-invoice path stays single-shot under redelivery.
	Create(ctx context.Context, db *gorm.DB, contribution *Contribution) (bool, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, processedAt time.Time) error
	// FailPendingBySubscription moves every still-pending contribution of a
	// cancelled subscription to failed. Applying it twice is a no-op.
	FailPendingBySubscription(ctx context.Context, db *gorm.DB, subscriptionID string, at time.Time) (int64, error)
	// MarkReceiptSent sets receipt_sent_at only when it is still null and
	// reports whether this caller won the write. The loser must treat false
	// as "someone else already sent it".
	MarkReceiptSent(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
}
