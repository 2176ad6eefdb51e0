package app

import (
	"time"

	"github.com/DrSkyle/faultline/pkg/graph"
	"github.com/DrSkyle/faultline/pkg/resource"
)

// DemoTopology is a small storefront used by --demo: one shared database,
// a single gateway, a redundant cache and a queue feeding workers.
func DemoTopology() *graph.Graph {
	return graph.NewMockFactory().
		AddResource("edge-gateway", "api_gateway", false).
		AddResource("checkout-api", "web_app", false).
		AddResource("catalog-api", "web_app", false).
		AddResource("accounts-api", "web_app", false).
		AddResource("orders-db", "database", false).
		AddResource("session-cache", "cache", true).
		AddResource("orders-queue", "message_queue", false).
		AddResource("auth", "identity_provider", false).
		DependsOn("edge-gateway", "checkout-api").
		DependsOn("edge-gateway", "catalog-api").
		DependsOn("edge-gateway", "accounts-api").
		DependsOn("checkout-api", "orders-db").
		DependsOn("catalog-api", "orders-db").
		DependsOn("accounts-api", "orders-db").
		DependsOn("checkout-api", "session-cache").
		DependsOn("checkout-api", "orders-queue").
		DependsOn("checkout-api", "auth").
		DependsOn("accounts-api", "auth").
		FanIn("orders-queue", "function_app", 3).
		Observe("checkout-api", "orders-db", resource.SourceInfrastructure, 0.9, 2*time.Hour).
		Observe("checkout-api", "orders-db", resource.SourceTrace, 0.85, time.Hour).
		Observe("catalog-api", "orders-db", resource.SourceCodeScan, 0.7, 40*24*time.Hour).
		Observe("accounts-api", "auth", resource.SourceMetrics, 0.65, 3*time.Hour).
		Build()
}
