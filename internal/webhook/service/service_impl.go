package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallparish/offertory/internal/analytics"
	"github.com/smallparish/offertory/internal/clock"
	contributiondomain "github.com/smallparish/offertory/internal/contribution/domain"
	gatewaydomain "github.com/smallparish/offertory/internal/gateway/domain"
	obsmetrics "github.com/smallparish/offertory/internal/observability/metrics"
	"github.com/smallparish/offertory/internal/receipt"
	"github.com/smallparish/offertory/internal/webhook/domain"
	"github.com/smallparish/offertory/internal/webhook/signature"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Verifier      *signature.Verifier
	Repo          domain.Repository
	Contributions contributiondomain.Repository
	Gateway       gatewaydomain.Reader
	Notifier      *receipt.Notifier
	Analytics     analytics.Sink
	Metrics       *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	verifier      *signature.Verifier
	repo          domain.Repository
	contributions contributiondomain.Repository
	gateway       gatewaydomain.Reader
	notifier      *receipt.Notifier
	analytics     analytics.Sink
	metrics       *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("webhook.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		verifier:      p.Verifier,
		repo:          p.Repo,
		contributions: p.Contributions,
		gateway:       p.Gateway,
		notifier:      p.Notifier,
		analytics:     p.Analytics,
		metrics:       p.Metrics,
	}
}

// Ingest is the single entry point for gateway deliveries: authenticate,
// record exactly once, dispatch, mark processed. A delivery whose ledger row
// is already marked processed is acknowledged as a duplicate without
// re-running its handler. An accepted-but-unprocessed row (crash between
// accept and markProcessed) re-drives the handler; handlers are idempotent.
func (s *Service) Ingest(ctx context.Context, payload []byte, signatureHeader string) (domain.Outcome, error) {
	if err := s.verifier.Verify(payload, signatureHeader); err != nil {
		s.metrics.RecordWebhookEvent(ctx, "unverified", string(domain.OutcomeFailed))
		return domain.OutcomeFailed, err
	}

	event, err := domain.ParseEvent(payload)
	if err != nil {
		s.metrics.RecordWebhookEvent(ctx, "unparseable", string(domain.OutcomeFailed))
		return domain.OutcomeFailed, err
	}

	record := &domain.EventRecord{
		ID:             s.genID.Generate(),
		GatewayEventID: event.GatewayEventID,
		EventType:      string(event.Type),
		Payload:        event.RawPayload,
		ReceivedAt:     s.clock.Now(),
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		return domain.OutcomeFailed, err
	}
	if !inserted {
		stored, err := s.repo.FindEvent(ctx, s.db, event.GatewayEventID)
		if err != nil {
			return domain.OutcomeFailed, err
		}
		if stored == nil {
			// Lost a race with a concurrent delete, treat as fresh failure
			// and let the gateway redeliver.
			return domain.OutcomeFailed, domain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			s.log.Info("duplicate delivery acknowledged",
				zap.String("gateway_event_id", event.GatewayEventID),
				zap.String("event_type", string(event.Type)))
			s.metrics.RecordWebhookEvent(ctx, string(event.Type), string(domain.OutcomeDuplicate))
			return domain.OutcomeDuplicate, nil
		}
		record = stored
	}

	outcome, err := s.process(ctx, record, event)
	if err != nil {
		s.metrics.RecordHandlerFailure(ctx, string(event.Type))
		return domain.OutcomeFailed, err
	}

	s.metrics.RecordWebhookEvent(ctx, string(event.Type), string(outcome))
	return outcome, nil
}

// process dispatches the handler and marks the ledger row processed. Any
// handler error leaves processed_at null so the event stays visible to the
// gateway's redelivery and to the reprocessing sweep.
func (s *Service) process(ctx context.Context, record *domain.EventRecord, event *domain.Event) (domain.Outcome, error) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.clock.Now()
	}

	outcome := domain.OutcomeProcessed

	switch event.Type {
	case domain.EventTypePaymentSucceeded:
		if err := s.handlePaymentSucceeded(ctx, event); err != nil {
			return domain.OutcomeFailed, err
		}
	case domain.EventTypePaymentFailed:
		if err := s.handlePaymentFailed(ctx, event); err != nil {
			return domain.OutcomeFailed, err
		}
	case domain.EventTypeInvoicePaid:
		if err := s.handleInvoicePaid(ctx, event); err != nil {
			return domain.OutcomeFailed, err
		}
	case domain.EventTypeInvoicePaymentFailed:
		if err := s.handleInvoicePaymentFailed(ctx, event); err != nil {
			return domain.OutcomeFailed, err
		}
	case domain.EventTypeSubscriptionCancelled:
		if err := s.handleSubscriptionCancelled(ctx, event); err != nil {
			return domain.OutcomeFailed, err
		}
	default:
		// Unknown kinds are acknowledged and ledgered but mutate nothing.
		s.log.Info("ignoring unrecognized event type",
			zap.String("gateway_event_id", event.GatewayEventID),
			zap.String("raw_type", event.RawType))
		outcome = domain.OutcomeIgnored
	}

	if err := s.repo.MarkProcessed(ctx, s.db, record.ID, s.clock.Now()); err != nil {
		return domain.OutcomeFailed, err
	}
	return outcome, nil
}

// RedriveUnprocessed replays accepted events that never reached processed_at,
// oldest first. Events that fail again stay in the ledger for the next sweep.
func (s *Service) RedriveUnprocessed(ctx context.Context, before time.Time, limit int) (int, error) {
	records, err := s.repo.ListUnprocessed(ctx, s.db, before, limit)
	if err != nil {
		return 0, err
	}

	redriven := 0
	for i := range records {
		record := &records[i]
		event, err := domain.ParseEvent(record.Payload)
		if err != nil {
			s.log.Error("stored event payload no longer parses",
				zap.String("gateway_event_id", record.GatewayEventID), zap.Error(err))
			continue
		}
		if _, err := s.process(ctx, record, event); err != nil {
			s.log.Warn("redrive failed",
				zap.String("gateway_event_id", record.GatewayEventID),
				zap.String("event_type", record.EventType),
				zap.Error(err))
			s.metrics.RecordHandlerFailure(ctx, record.EventType)
			continue
		}
		redriven++
	}
	return redriven, nil
}

// handlePaymentSucceeded promotes the contribution behind a one-time charge
// to succeeded and triggers receipt + analytics. A charge we never created a
// contribution for is a hard error: the event stays unprocessed and keeps
// being retried until the upstream record shows up or an operator intervenes.
func (s *Service) handlePaymentSucceeded(ctx context.Context, event *domain.Event) error {
	contribution, err := s.contributions.FindByGatewayPaymentID(ctx, s.db, event.PaymentID)
	if err != nil {
		return err
	}
	if contribution == nil {
		s.log.Error("payment succeeded for unknown contribution",
			zap.String("gateway_event_id", event.GatewayEventID),
			zap.String("gateway_payment_id", event.PaymentID))
		return domain.ErrContributionNotFound
	}

	if contribution.PaymentStatus != contributiondomain.StatusSucceeded {
		now := s.clock.Now()
		if err := s.contributions.UpdateStatus(ctx, s.db, contribution.ID, contributiondomain.StatusSucceeded, now); err != nil {
			return err
		}
		contribution.PaymentStatus = contributiondomain.StatusSucceeded
		contribution.ProcessedAt = &now

		s.analytics.Record(ctx, analytics.ContributionEvent{
			Type:           "contribution.succeeded",
			TenantID:       contribution.TenantID,
			ContributionID: contribution.ID,
			FundID:         contribution.FundID,
			AmountCents:    contribution.AmountCents,
			Currency:       contribution.Currency,
			Recurring:      contribution.IsRecurring,
			OccurredAt:     event.OccurredAt,
		})
	}

	return s.notifier.SendIfNeeded(ctx, s.db, contribution)
}

// handlePaymentFailed moves the contribution to failed. Unknown payment ids
// are logged and acknowledged: there is nothing to roll back.
func (s *Service) handlePaymentFailed(ctx context.Context, event *domain.Event) error {
	contribution, err := s.contributions.FindByGatewayPaymentID(ctx, s.db, event.PaymentID)
	if err != nil {
		return err
	}
	if contribution == nil {
		s.log.Warn("payment failed for unknown contribution",
			zap.String("gateway_event_id", event.GatewayEventID),
			zap.String("gateway_payment_id", event.PaymentID))
		return nil
	}
	if contribution.PaymentStatus == contributiondomain.StatusFailed {
		return nil
	}
	return s.contributions.UpdateStatus(ctx, s.db, contribution.ID, contributiondomain.StatusFailed, s.clock.Now())
}

// handleInvoicePaid records one cycle of a recurring gift. The unique index
// on gateway_payment_id makes the create single-shot under redelivery and
// under distinct invoice events that reference the same payment.
func (s *Service) handleInvoicePaid(ctx context.Context, event *domain.Event) error {
	if event.SubscriptionID == "" {
		s.log.Info("invoice without subscription, skipping",
			zap.String("gateway_event_id", event.GatewayEventID),
			zap.String("invoice_id", event.InvoiceID))
		return nil
	}
	if event.PaymentID == "" {
		// Zero-amount or out-of-band-paid invoices carry no payment. There
		// is no money movement to record, and an empty payment id must never
		// reach the contribution store: the unique index would collapse
		// every such invoice onto one row across subscriptions.
		s.log.Warn("paid invoice without payment id, skipping",
			zap.String("gateway_event_id", event.GatewayEventID),
			zap.String("invoice_id", event.InvoiceID),
			zap.String("subscription_id", event.SubscriptionID))
		return nil
	}

	existing, err := s.contributions.FindByGatewayPaymentID(ctx, s.db, event.PaymentID)
	if err != nil {
		return err
	}
	if existing == nil {
		sub, err := s.gateway.RetrieveSubscription(ctx, event.SubscriptionID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		processedAt := now
		subscriptionID := event.SubscriptionID
		contribution := &contributiondomain.Contribution{
			ID:               s.genID.Generate(),
			TenantID:         sub.TenantID,
			PersonID:         sub.PersonID,
			FundID:           sub.FundID,
			DonorName:        sub.DonorName,
			DonorEmail:       sub.DonorEmail,
			AmountCents:      event.Amount,
			Currency:         event.Currency,
			PaymentMethod:    event.PaymentMethod,
			PaymentStatus:    contributiondomain.StatusSucceeded,
			GatewayPaymentID: event.PaymentID,
			IsRecurring:      true,
			SubscriptionID:   &subscriptionID,
			ProcessedAt:      &processedAt,
			CreatedAt:        now,
			UpdatedAt:        now,
		}

		created, err := s.contributions.Create(ctx, s.db, contribution)
		if err != nil {
			return err
		}
		if !created {
			// Concurrent delivery beat us to the insert, reload its row.
			existing, err = s.contributions.FindByGatewayPaymentID(ctx, s.db, event.PaymentID)
			if err != nil {
				return err
			}
			if existing == nil {
				return domain.ErrContributionNotFound
			}
		} else {
			existing = contribution
			s.analytics.Record(ctx, analytics.ContributionEvent{
				Type:           "contribution.succeeded",
				TenantID:       contribution.TenantID,
				ContributionID: contribution.ID,
				FundID:         contribution.FundID,
				AmountCents:    contribution.AmountCents,
				Currency:       contribution.Currency,
				Recurring:      true,
				OccurredAt:     event.OccurredAt,
			})
		}
	}

	return s.notifier.SendIfNeeded(ctx, s.db, existing)
}

// handleInvoicePaymentFailed nudges the donor to fix their payment method.
// Best effort: a notice that cannot be delivered never fails the event.
func (s *Service) handleInvoicePaymentFailed(ctx context.Context, event *domain.Event) error {
	if event.SubscriptionID == "" {
		return nil
	}

	sub, err := s.gateway.RetrieveSubscription(ctx, event.SubscriptionID)
	if err != nil {
		return err
	}
	if sub.DonorEmail == "" {
		s.log.Info("recurring payment failed but subscription has no donor email",
			zap.String("subscription_id", event.SubscriptionID))
		return nil
	}

	subscriptionID := event.SubscriptionID
	return s.notifier.SendPaymentNotice(ctx, &contributiondomain.Contribution{
		TenantID:       sub.TenantID,
		PersonID:       sub.PersonID,
		FundID:         sub.FundID,
		DonorName:      sub.DonorName,
		DonorEmail:     sub.DonorEmail,
		AmountCents:    event.Amount,
		Currency:       event.Currency,
		IsRecurring:    true,
		SubscriptionID: &subscriptionID,
	})
}

// handleSubscriptionCancelled fails every still-pending contribution of the
// subscription in one set-based update. Running it again affects zero rows.
func (s *Service) handleSubscriptionCancelled(ctx context.Context, event *domain.Event) error {
	affected, err := s.contributions.FailPendingBySubscription(ctx, s.db, event.SubscriptionID, s.clock.Now())
	if err != nil {
		return err
	}
	s.log.Info("subscription cancelled",
		zap.String("subscription_id", event.SubscriptionID),
		zap.Int64("pending_contributions_failed", affected))
	return nil
}
