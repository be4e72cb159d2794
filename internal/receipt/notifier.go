package receipt

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/smallparish/offertory/internal/clock"
	"github.com/smallparish/offertory/internal/config"
	contributiondomain "github.com/smallparish/offertory/internal/contribution/domain"
	obsmetrics "github.com/smallparish/offertory/internal/observability/metrics"
	"github.com/smallparish/offertory/internal/providers/email"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var receiptTemplate = template.Must(template.New("receipt").Parse(`<html>
<body>
  <p>Dear {{.DonorName}},</p>
  <p>{{.OrganizationName}} gratefully acknowledges your gift of <strong>{{.Amount}}</strong> to the {{.Fund}} fund on {{.Date}}.</p>
  <p>Payment method: {{.PaymentMethod}}<br/>Record reference: {{.Reference}}</p>
  <p>No goods or services were provided in exchange for this contribution.</p>
</body>
</html>`))

var noticeTemplate = template.Must(template.New("notice").Parse(`<html>
<body>
  <p>Dear {{.DonorName}},</p>
  <p>We were unable to process your recurring gift of <strong>{{.Amount}}</strong> to the {{.Fund}} fund.</p>
  <p>Please update your payment method so your giving to {{.OrganizationName}} can continue uninterrupted.</p>
</body>
</html>`))

// Notifier sends donor-facing emails for settled and failed gifts. Receipt
// sends are at-most-once: the receipt_sent_at column is claimed with a
// conditional update before the email leaves, so a crash after the claim
// loses a receipt rather than duplicating one.
type Notifier struct {
	contributions contributiondomain.Repository
	provider      email.Provider
	holder        *config.NotificationConfigHolder
	clock         clock.Clock
	metrics       *obsmetrics.Metrics
	log           *zap.Logger
}

func NewNotifier(
	contributions contributiondomain.Repository,
	provider email.Provider,
	holder *config.NotificationConfigHolder,
	clk clock.Clock,
	metrics *obsmetrics.Metrics,
	log *zap.Logger,
) *Notifier {
	return &Notifier{
		contributions: contributions,
		provider:      provider,
		holder:        holder,
		clock:         clk,
		metrics:       metrics,
		log:           log.Named("receipt.notifier"),
	}
}

// SendIfNeeded emails a receipt for the contribution unless one was already
// sent. A failed send after the claim is logged and swallowed; the payment
// itself already succeeded and must be acknowledged.
func (n *Notifier) SendIfNeeded(ctx context.Context, db *gorm.DB, contribution *contributiondomain.Contribution) error {
	if contribution.ReceiptSentAt != nil {
		return nil
	}
	if strings.TrimSpace(contribution.DonorEmail) == "" {
		n.log.Warn("contribution has no donor email, skipping receipt",
			zap.Int64("contribution_id", int64(contribution.ID)))
		return nil
	}

	claimed, err := n.contributions.MarkReceiptSent(ctx, db, contribution.ID, n.clock.Now())
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	cfg := n.holder.Get()
	body, err := n.renderReceipt(contribution, cfg)
	if err != nil {
		n.log.Error("receipt render failed",
			zap.Int64("contribution_id", int64(contribution.ID)), zap.Error(err))
		return nil
	}

	if err := n.provider.Send(ctx, []string{contribution.DonorEmail}, cfg.ReceiptSubject, body); err != nil {
		n.log.Error("receipt send failed",
			zap.Int64("contribution_id", int64(contribution.ID)),
			zap.String("donor_email", contribution.DonorEmail),
			zap.Error(err))
		return nil
	}

	n.metrics.RecordReceiptSent(ctx)
	n.log.Info("receipt sent",
		zap.Int64("contribution_id", int64(contribution.ID)),
		zap.String("fund_id", contribution.FundID))
	return nil
}

// SendPaymentNotice emails the donor that a recurring charge failed. Notices
// carry no at-most-once guarantee; a repeated nudge is acceptable.
func (n *Notifier) SendPaymentNotice(ctx context.Context, contribution *contributiondomain.Contribution) error {
	if strings.TrimSpace(contribution.DonorEmail) == "" {
		return nil
	}

	cfg := n.holder.Get()
	body, err := renderTemplate(noticeTemplate, map[string]string{
		"DonorName":        donorName(contribution),
		"OrganizationName": cfg.OrganizationName,
		"Amount":           FormatAmount(contribution.AmountCents, contribution.Currency),
		"Fund":             contribution.FundID,
	})
	if err != nil {
		return err
	}

	if err := n.provider.Send(ctx, []string{contribution.DonorEmail}, cfg.PaymentIssueSubject, body); err != nil {
		n.log.Error("payment notice send failed",
			zap.Int64("contribution_id", int64(contribution.ID)), zap.Error(err))
		return nil
	}

	n.metrics.RecordNoticeSent(ctx)
	return nil
}

func (n *Notifier) renderReceipt(contribution *contributiondomain.Contribution, cfg config.NotificationConfig) (string, error) {
	return renderTemplate(receiptTemplate, map[string]string{
		"DonorName":        donorName(contribution),
		"OrganizationName": cfg.OrganizationName,
		"Amount":           FormatAmount(contribution.AmountCents, contribution.Currency),
		"Fund":             contribution.FundID,
		"Date":             n.clock.Now().Format("January 2, 2006"),
		"PaymentMethod":    paymentMethod(contribution),
		"Reference":        recordReference(contribution.GatewayPaymentID),
	})
}

func renderTemplate(tmpl *template.Template, data map[string]string) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func donorName(contribution *contributiondomain.Contribution) string {
	if name := strings.TrimSpace(contribution.DonorName); name != "" {
		return name
	}
	return "Friend"
}

func paymentMethod(contribution *contributiondomain.Contribution) string {
	if method := strings.TrimSpace(contribution.PaymentMethod); method != "" {
		return method
	}
	return "card"
}

// recordReference shortens a gateway payment id for display so receipts do
// not leak the full gateway identifier.
func recordReference(gatewayPaymentID string) string {
	const max = 12
	if len(gatewayPaymentID) <= max {
		return gatewayPaymentID
	}
	return gatewayPaymentID[:max]
}

var currencySymbols = map[string]string{
	"USD": "$",
	"CAD": "$",
	"AUD": "$",
	"EUR": "€",
	"GBP": "£",
}

// FormatAmount renders integer cents as a donor-facing money string,
// e.g. 2500 USD becomes "$25.00".
func FormatAmount(cents int64, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	symbol, ok := currencySymbols[currency]
	if !ok {
		return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, currency)
	}
	negative := ""
	if cents < 0 {
		negative = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%s%d.%02d", negative, symbol, cents/100, cents%100)
}
