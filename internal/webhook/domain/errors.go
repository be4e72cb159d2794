package domain

import "errors"

var (
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrContributionNotFound  = errors.New("contribution_not_found")
	ErrSubscriptionNotFound  = errors.New("subscription_not_found")
	ErrGatewayUnavailable    = errors.New("gateway_unavailable")
)
