package cli

import (
	domainsapp "github.com/craftfolio/craftfolio/internal/domains/application"
	domainsdomain "github.com/craftfolio/craftfolio/internal/domains/domain"
	routingapp "github.com/craftfolio/craftfolio/internal/routing/application"
	voucherapp "github.com/craftfolio/craftfolio/internal/vouchers/application"
)

// App bundles the services the commands operate on. Commands that run
// without a database connection get a nil App and must say so.
type App struct {
	Records    domainsdomain.Repository
	Routes     *routingapp.Service
	Portfolios domainsapp.PortfolioResolver
	Vouchers   *voucherapp.Service
}

var app *App

// SetApp installs the wired application services.
func SetApp(a *App) {
	app = a
}

// GetApp returns the wired application services, or nil when the
// process could not reach the database.
func GetApp() *App {
	return app
}
