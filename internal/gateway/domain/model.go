package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Subscription is the gateway's view of a recurring giving plan. It is the
// source of truth for tenant/person/fund attribution on recurring charges;
// nothing here is persisted by this service.
type Subscription struct {
	ID         string        `json:"id"`
	Status     string        `json:"status"`
	TenantID   snowflake.ID  `json:"tenant_id"`
	PersonID   *snowflake.ID `json:"person_id,omitempty"`
	FundID     string        `json:"fund_id"`
	DonorName  string        `json:"donor_name"`
	DonorEmail string        `json:"donor_email"`
}

// Reader is the gateway's synchronous read API used while handling
// recurring-invoice events.
type Reader interface {
	RetrieveSubscription(ctx context.Context, id string) (*Subscription, error)
}
