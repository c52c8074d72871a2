package module

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/tradeflow/internal/errors"
	"github.com/felixgeelhaar/tradeflow/internal/log"
	"github.com/felixgeelhaar/tradeflow/internal/metrics"
	"github.com/felixgeelhaar/tradeflow/internal/telemetry"
)

const (
	DefaultTimeout          = 30 * time.Second
	DefaultBatchConcurrency = 8
)

// DispatcherConfig tunes a Dispatcher.
type DispatcherConfig struct {
	DefaultTimeout   time.Duration
	BatchConcurrency int
	Logger           *log.Logger
	Metrics          *metrics.Metrics
	Now              func() time.Time
}

// Dispatcher resolves modules in a Catalog and calls them through a Transport.
type Dispatcher struct {
	catalog   *Catalog
	transport Transport
	timeout   time.Duration
	batch     int
	logger    *log.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(catalog *Catalog, transport Transport, cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		catalog:   catalog,
		transport: transport,
		timeout:   cfg.DefaultTimeout,
		batch:     cfg.BatchConcurrency,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}
	if d.batch <= 0 {
		d.batch = DefaultBatchConcurrency
	}
	if d.logger == nil {
		d.logger = log.Discard()
	}
	if d.now == nil {
		d.now = time.Now
	}
	d.logger = d.logger.WithComponent("module")
	return d
}

// Catalog returns the catalog the dispatcher resolves against.
func (d *Dispatcher) Catalog() *Catalog { return d.catalog }

// Dispatch calls one module.
//
// Unknown modules fail with NotFound and inactive ones with Disabled, both
// without touching the transport. An elapsed deadline is a Timeout; any other
// transport failure is a TransportError.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Response, error) {
	m, err := d.catalog.Get(req.ModuleID)
	if err != nil {
		d.metrics.RecordDispatch(req.ModuleID, string(errors.KindNotFound), 0)
		return nil, err
	}
	if !m.Active {
		d.metrics.RecordDispatch(req.ModuleID, string(errors.KindDisabled), 0)
		return nil, errors.NewModuleDisabledError(req.ModuleID)
	}

	ctx, span := telemetry.StartDispatchSpan(ctx, m.ID, req.Method)
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, req.timeout(d.timeout))
	defer cancel()

	start := d.now()
	data, err := d.transport.Call(callCtx, m, req.Method, req.Parameters)
	elapsed := d.now().Sub(start)
	telemetry.RecordDuration(span, "dispatch", elapsed)

	if err != nil {
		err = d.classify(callCtx, m.ID, err)
		d.metrics.RecordDispatch(m.ID, string(errors.KindOf(err)), elapsed)
		telemetry.RecordError(span, err)
		d.logger.WithError(err).Debug("module dispatch failed", "module", m.ID, "method", req.Method)
		return nil, err
	}

	d.metrics.RecordDispatch(m.ID, "success", elapsed)
	telemetry.RecordSuccess(span, attribute.Int("module.fields", len(data)))

	return &Response{
		ModuleID:      m.ID,
		Success:       true,
		Data:          data,
		ExecutionTime: elapsed.Milliseconds(),
		Timestamp:     d.now().UTC(),
	}, nil
}

func (d *Dispatcher) classify(callCtx context.Context, moduleID string, err error) error {
	if _, coded := errors.As(err); coded {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return errors.Wrap(errors.ErrCodeModuleTimeout, fmt.Sprintf("module %s timed out", moduleID), err)
	}
	return errors.Wrap(errors.ErrCodeModuleTransport, fmt.Sprintf("module %s call failed", moduleID), err)
}

// DispatchBatch runs independent requests concurrently. The result has the
// same length and order as reqs; a failure only affects its own entry.
func (d *Dispatcher) DispatchBatch(ctx context.Context, reqs []Request) ([]Response, error) {
	if len(reqs) == 0 {
		return nil, errors.NewValidationError("batch must contain at least one request")
	}

	out := make([]Response, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.batch)

	for i, req := range reqs {
		g.Go(func() error {
			resp, err := d.Dispatch(gctx, req)
			if err != nil {
				out[i] = Response{
					ModuleID:  req.ModuleID,
					Success:   false,
					Error:     ErrorMessage(err),
					ErrorCode: errorCode(err),
					Timestamp: d.now().UTC(),
				}
				return nil
			}
			out[i] = *resp
			return nil
		})
	}
	_ = g.Wait()

	return out, nil
}

// ErrorMessage renders err without suggestions, for step and batch records.
func ErrorMessage(err error) string {
	if te, ok := errors.As(err); ok {
		if te.Cause != nil {
			return fmt.Sprintf("%s: %v", te.Message, te.Cause)
		}
		return te.Message
	}
	return err.Error()
}

func errorCode(err error) string {
	if te, ok := errors.As(err); ok {
		return string(te.Code)
	}
	return ""
}
