package receipt

import (
	"github.com/smallparish/offertory/internal/clock"
	"github.com/smallparish/offertory/internal/config"
	contributiondomain "github.com/smallparish/offertory/internal/contribution/domain"
	obsmetrics "github.com/smallparish/offertory/internal/observability/metrics"
	"github.com/smallparish/offertory/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Contributions contributiondomain.Repository
	Provider      email.Provider
	Holder        *config.NotificationConfigHolder
	Clock         clock.Clock
	Metrics       *obsmetrics.Metrics `optional:"true"`
	Log           *zap.Logger
}

var Module = fx.Module("receipt",
	fx.Provide(func(p Params) *Notifier {
		return NewNotifier(p.Contributions, p.Provider, p.Holder, p.Clock, p.Metrics, p.Log)
	}),
)
