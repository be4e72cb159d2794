package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallparish/offertory/internal/analytics"
	"github.com/smallparish/offertory/internal/clock"
	"github.com/smallparish/offertory/internal/config"
	"github.com/smallparish/offertory/internal/contribution"
	"github.com/smallparish/offertory/internal/gateway"
	"github.com/smallparish/offertory/internal/migration"
	"github.com/smallparish/offertory/internal/observability"
	"github.com/smallparish/offertory/internal/providers/email"
	"github.com/smallparish/offertory/internal/receipt"
	"github.com/smallparish/offertory/internal/server"
	"github.com/smallparish/offertory/internal/sweeper"
	"github.com/smallparish/offertory/internal/webhook"
	"github.com/smallparish/offertory/pkg/db"
	"github.com/smallparish/offertory/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Providers
		email.Module,
		gateway.Module,
		analytics.Module,

		// Functional domains
		contribution.Module,
		receipt.Module,
		webhook.Module,

		// Surfaces
		server.Module,
		sweeper.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
