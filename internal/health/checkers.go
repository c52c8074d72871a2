package health

import (
	"context"
	"time"
)

// Catalog is the part of module.Catalog the catalog check needs.
type Catalog interface {
	Len() int
	ActiveCount() int
}

// CatalogChecker is unhealthy when no module can be dispatched.
type CatalogChecker struct {
	catalog Catalog
}

func NewCatalogChecker(catalog Catalog) *CatalogChecker {
	return &CatalogChecker{catalog: catalog}
}

func (c *CatalogChecker) Name() string { return "module-catalog" }

func (c *CatalogChecker) Check(ctx context.Context) *Result {
	if c.catalog == nil {
		return Unhealthy("module catalog not loaded")
	}
	total, active := c.catalog.Len(), c.catalog.ActiveCount()
	var r *Result
	switch {
	case active == 0:
		r = Unhealthy("no active modules")
	case active < total:
		r = Healthy("some modules are disabled")
	default:
		r = Healthy("all modules active")
	}
	return r.WithDetail("modules", total).WithDetail("active", active)
}

// Pinger is anything with a context-aware liveness call, such as a chat store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker wraps a Pinger under a check name.
type PingChecker struct {
	name   string
	target Pinger
}

func NewPingChecker(name string, target Pinger) *PingChecker {
	return &PingChecker{name: name, target: target}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) *Result {
	start := time.Now()
	if err := c.target.Ping(ctx); err != nil {
		return Unhealthy("ping failed").
			WithDetail("error", err.Error()).
			WithLatency(time.Since(start))
	}
	return Healthy("reachable").WithLatency(time.Since(start))
}

// Gauge reports a count, such as plans in flight.
type Gauge func() int

// GaugeChecker exposes a count as a detail. It is degraded when the count
// reaches limit; a limit of 0 never degrades.
type GaugeChecker struct {
	name  string
	gauge Gauge
	limit int
}

func NewGaugeChecker(name string, gauge Gauge, limit int) *GaugeChecker {
	return &GaugeChecker{name: name, gauge: gauge, limit: limit}
}

func (c *GaugeChecker) Name() string { return c.name }

func (c *GaugeChecker) Check(ctx context.Context) *Result {
	n := c.gauge()
	if c.limit > 0 && n >= c.limit {
		return Degraded("at capacity").WithDetail("current", n).WithDetail("limit", c.limit)
	}
	return Healthy("ok").WithDetail("current", n)
}
