package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Agents         *handlers.AgentsHandler
	Metrics        *handlers.MetricsHandler
	AuthMiddleware *auth.AuthMiddleware
	Registry       *prometheus.Registry
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{})))
	}

	protected := app.Group("", cfg.AuthMiddleware.Handle)

	tickets := protected.Group("/tickets")
	tickets.Post("/", auth.RequireCustomer(), cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/messages", cfg.Tickets.AddMessage)
	tickets.Post("/:id/messages/:messageId/read", cfg.Tickets.MarkMessageRead)
	tickets.Post("/:id/claim", auth.RequireStaff(), cfg.Tickets.Claim)
	tickets.Post("/:id/assign", auth.RequireManager(), cfg.Tickets.Assign)
	tickets.Post("/:id/auto-assign", auth.RequireManager(), cfg.Tickets.AutoAssign)
	tickets.Post("/:id/status", auth.RequireStaff(), cfg.Tickets.ChangeStatus)
	tickets.Post("/:id/close", cfg.Tickets.Close)
	tickets.Post("/:id/rating", auth.RequireCustomer(), cfg.Tickets.Rate)

	agents := protected.Group("/agents")
	agents.Get("/", auth.RequireStaff(), cfg.Agents.ListAgents)
	agents.Get("/workload", auth.RequireStaff(), cfg.Agents.Workload)
	agents.Put("/:id", auth.RequireManager(), cfg.Agents.UpsertAgent)
	agents.Get("/:id/metrics", auth.RequireManager(), cfg.Agents.AgentMetrics)

	protected.Get("/metrics/daily", auth.RequireManager(), cfg.Metrics.DailyMetrics)
	protected.Post("/sweeps/:name", auth.RequireManager(), cfg.Metrics.RunSweep)
}
