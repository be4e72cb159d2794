package analytics

import (
	"github.com/smallparish/offertory/internal/config"
	obsmetrics "github.com/smallparish/offertory/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

var Module = fx.Module("analytics",
	fx.Provide(func(p Params) Sink {
		return NewHTTPSink(p.Cfg.AnalyticsEndpoint, p.Cfg.AnalyticsTimeout, p.Log, p.Metrics)
	}),
)
