// Package module holds the catalog of external-data modules and dispatches
// calls to them through a Transport.
package module

import "time"

// Category groups modules by the kind of data they provide.
type Category string

const (
	CategorySecurities Category = "securities"
	CategoryData       Category = "data"
	CategoryAnalysis   Category = "analysis"
	CategoryReport     Category = "report"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategorySecurities, CategoryData, CategoryAnalysis, CategoryReport:
		return true
	}
	return false
}

// Module describes one catalog entry.
type Module struct {
	ID           string         `json:"id" yaml:"id"`
	Name         string         `json:"name" yaml:"name"`
	DisplayName  string         `json:"displayName" yaml:"displayName"`
	Category     Category       `json:"type" yaml:"type"`
	Description  string         `json:"description" yaml:"description"`
	Version      string         `json:"version" yaml:"version"`
	Active       bool           `json:"isActive" yaml:"isActive"`
	Capabilities []string       `json:"capabilities" yaml:"capabilities"`
	Config       map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Category Category
	Active   *bool
}

func (f Filter) match(m *Module) bool {
	if f.Category != "" && m.Category != f.Category {
		return false
	}
	if f.Active != nil && m.Active != *f.Active {
		return false
	}
	return true
}

// Request is one module call.
type Request struct {
	ModuleID   string         `json:"moduleId"`
	Method     string         `json:"method"`
	Parameters map[string]any `json:"parameters,omitempty"`
	// Timeout bounds the call; zero uses the dispatcher default.
	Timeout time.Duration `json:"-"`
	// TimeoutMillis is the wire form of Timeout.
	TimeoutMillis int64 `json:"timeout,omitempty"`
}

func (r Request) timeout(def time.Duration) time.Duration {
	switch {
	case r.Timeout > 0:
		return r.Timeout
	case r.TimeoutMillis > 0:
		return time.Duration(r.TimeoutMillis) * time.Millisecond
	default:
		return def
	}
}

// Response is the outcome of a call. Failed batch entries carry Error.
type Response struct {
	ModuleID      string         `json:"moduleId"`
	Success       bool           `json:"success"`
	Data          map[string]any `json:"data,omitempty"`
	Error         string         `json:"error,omitempty"`
	ErrorCode     string         `json:"errorCode,omitempty"`
	ExecutionTime int64          `json:"executionTime"` // milliseconds
	Timestamp     time.Time      `json:"timestamp"`
}
