package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nclexprep/internal/clock"
	"github.com/smallbiznis/nclexprep/internal/config"
	"github.com/smallbiznis/nclexprep/internal/migration"
	"github.com/smallbiznis/nclexprep/internal/observability"
	"github.com/smallbiznis/nclexprep/internal/order"
	"github.com/smallbiznis/nclexprep/internal/payment"
	"github.com/smallbiznis/nclexprep/internal/providers/email"
	"github.com/smallbiznis/nclexprep/internal/ratelimit"
	"github.com/smallbiznis/nclexprep/internal/seed"
	"github.com/smallbiznis/nclexprep/internal/server"
	"github.com/smallbiznis/nclexprep/internal/subscription"
	"github.com/smallbiznis/nclexprep/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		seed.Module,

		// Functional Domains
		order.Module,
		subscription.Module,
		ratelimit.Module,
		email.Module,
		payment.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
