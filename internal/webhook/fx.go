package webhook

import (
	"github.com/smallparish/offertory/internal/config"
	"github.com/smallparish/offertory/internal/webhook/repository"
	"github.com/smallparish/offertory/internal/webhook/service"
	"github.com/smallparish/offertory/internal/webhook/signature"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(func(cfg config.Config) *signature.Verifier {
		return signature.New(cfg.WebhookSigningSecret, cfg.SignatureTolerance)
	}),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
