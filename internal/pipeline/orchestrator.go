// Package pipeline turns a VIN into a stored report and optionally emails it.
//
// A run moves through an explicit state machine (see Next). Decode, render
// and store failures end the run; an email failure does not, because the
// stored report is the primary deliverable.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/devghori1264/vinreport/internal/decode"
	"github.com/devghori1264/vinreport/internal/models"
	"github.com/devghori1264/vinreport/internal/notify"
	"github.com/devghori1264/vinreport/internal/render"
	"github.com/devghori1264/vinreport/internal/storage"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/devghori1264/vinreport/internal/pipeline"

// Outcome messages.
const (
	MsgCompleted    = "PDF generated successfully"
	MsgPartial      = "PDF generated; email delivery failed"
	MsgFailedDecode = "vehicle decode failed"
	MsgFailedRender = "report rendering failed"
	MsgFailedStore  = "report storage failed"
	MsgEmailSent    = "Email sent"
)

// Store is the part of the report store the pipeline needs.
type Store interface {
	Persist(ctx context.Context, vin string, content []byte) (models.ReportArtifact, error)
	Open(vin string) ([]byte, error)
}

// Request is one inbound report request.
type Request struct {
	VIN   string
	Email string
}

// Orchestrator wires the pipeline's collaborators. It holds no per-request
// state and is safe for concurrent use.
type Orchestrator struct {
	decoder  decode.Fetcher
	renderer render.Renderer
	store    Store
	notifier notify.Notifier

	publisher Publisher
	metrics   *Metrics
	tracer    trace.Tracer
	log       *zap.Logger
	now       func() time.Time
	newID     func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithPublisher(p Publisher) Option { return func(o *Orchestrator) { o.publisher = p } }

func WithMetrics(m *Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) { o.tracer = tp.Tracer(tracerName) }
}

func WithLogger(l *zap.Logger) Option { return func(o *Orchestrator) { o.log = l } }

// WithClock pins the time used for generatedAt and events.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// WithIDs overrides run ID generation.
func WithIDs(newID func() string) Option { return func(o *Orchestrator) { o.newID = newID } }

// New builds an orchestrator. A nil notifier behaves like notify.Disabled.
func New(decoder decode.Fetcher, renderer render.Renderer, store Store, notifier notify.Notifier, opts ...Option) *Orchestrator {
	if notifier == nil {
		notifier = notify.Disabled{}
	}
	o := &Orchestrator{
		decoder:  decoder,
		renderer: renderer,
		store:    store,
		notifier: notifier,
		metrics:  NewMetrics(nil),
		tracer:   otel.Tracer(tracerName),
		log:      zap.NewNop(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run carries the state of one invocation.
type run struct {
	id        string
	vin       string
	recipient string
	state     State
	states    []State

	record   models.VehicleRecord
	artifact *models.ReportArtifact
	notified *models.NotificationStatus
	cause    error
	log      *zap.Logger
}

// Run executes the pipeline for req and always returns an outcome. Caller
// cancellation does not stop a run that has started.
func (o *Orchestrator) Run(ctx context.Context, req Request) (out models.PipelineOutcome) {
	ctx = context.WithoutCancel(ctx)

	r := &run{
		id:        o.newID(),
		vin:       strings.TrimSpace(req.VIN),
		recipient: strings.TrimSpace(req.Email),
		state:     StateReceived,
		states:    []State{StateReceived},
	}
	r.log = o.log.With(zap.String("run_id", r.id), zap.String("vin", r.vin))

	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("vin", r.vin),
		attribute.String("run_id", r.id),
		attribute.Bool("notify", r.recipient != ""),
	))
	o.metrics.InFlight.Inc()

	defer func() {
		span.SetAttributes(attribute.String("state", out.State))
		if !out.Success {
			span.SetStatus(codes.Error, out.Message)
		}
		span.End()
		o.metrics.InFlight.Dec()
	}()

	o.drive(ctx, r)
	return o.finish(ctx, r)
}

// drive steps r until it reaches a terminal state. A panic in a step ends
// the run in that step's failure state.
func (o *Orchestrator) drive(ctx context.Context, r *run) {
	defer func() {
		if p := recover(); p != nil {
			r.cause = fmt.Errorf("internal error: %v", p)
			r.log.Error("pipeline panic", zap.Any("panic", p), zap.String("state", string(r.state)))
			if r.state == StateNotifying {
				r.notified = &models.NotificationStatus{Delivered: false, Detail: r.cause.Error()}
			}
			r.transition(failureFor(r.state))
		}
	}()

	for !r.state.Terminal() {
		err := o.step(ctx, r)
		r.transition(Next(r.state, err, r.recipient != ""))
	}
}

func (r *run) transition(next State) {
	if next == r.state {
		return
	}
	r.log.Debug("state transition", zap.String("from", string(r.state)), zap.String("to", string(next)))
	r.state = next
	r.states = append(r.states, next)
}

// step performs the work of the current state.
func (o *Orchestrator) step(ctx context.Context, r *run) error {
	switch r.state {
	case StateDecoding:
		rec, err := timed(o, ctx, "decode", func(ctx context.Context) (models.VehicleRecord, error) {
			return o.decoder.Fetch(ctx, r.vin)
		})
		if err != nil {
			r.cause = err
			return err
		}
		r.record = rec
	case StateRendering:
		content, err := timed(o, ctx, "render", func(context.Context) ([]byte, error) {
			return o.renderer.Render(r.record, o.now())
		})
		if err != nil {
			var re *render.RenderError
			if !errors.As(err, &re) {
				err = &render.RenderError{Kind: render.KindWrite, Err: err}
			}
			r.cause = err
			return err
		}
		artifact, err := timed(o, ctx, "store", func(ctx context.Context) (models.ReportArtifact, error) {
			return o.store.Persist(ctx, r.vin, content)
		})
		if err != nil {
			var se *storage.StoreError
			if !errors.As(err, &se) {
				err = &storage.StoreError{VIN: r.vin, Kind: storage.KindWrite, Err: err}
			}
			r.cause = err
			return err
		}
		r.artifact = &artifact
	case StateNotifying:
		_, err := timed(o, ctx, "notify", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, o.notify(ctx, r)
		})
		if err != nil {
			r.notified = &models.NotificationStatus{Delivered: false, Detail: err.Error()}
			o.metrics.Notifications.WithLabelValues(notifyResult(err)).Inc()
			r.log.Warn("email delivery failed", zap.String("recipient", r.recipient), zap.Error(err))
			return err
		}
		r.notified = &models.NotificationStatus{Delivered: true, Detail: MsgEmailSent}
		o.metrics.Notifications.WithLabelValues("delivered").Inc()
	}
	return nil
}

// notify reads the stored report back and hands it to the notifier. The
// orchestrator keeps only the location once the bytes are persisted.
func (o *Orchestrator) notify(ctx context.Context, r *run) error {
	content, err := o.store.Open(r.vin)
	if err != nil {
		return &notify.NotificationError{Kind: notify.KindAttachment, Recipient: r.recipient, Err: fmt.Errorf("read stored report: %w", err)}
	}
	req := notify.NewRequest(r.recipient, r.vin, r.artifact.Location, models.Attachment{
		Filename:    r.vin + render.Extension,
		ContentType: r.artifact.ContentType,
		Content:     content,
	})
	err = o.notifier.Send(ctx, req)
	if err == nil {
		return nil
	}
	var ne *notify.NotificationError
	if !errors.As(err, &ne) {
		err = &notify.NotificationError{Kind: notify.KindTransport, Recipient: r.recipient, Err: err}
	}
	return err
}

func notifyResult(err error) string {
	var ne *notify.NotificationError
	if errors.As(err, &ne) {
		return string(ne.Kind)
	}
	return "error"
}

// timed runs one step inside a span and records its duration.
func timed[T any](o *Orchestrator, ctx context.Context, step string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline."+step)
	defer span.End()

	start := time.Now()
	v, err := fn(ctx)
	result := "ok"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	o.metrics.StepDuration.WithLabelValues(step, result).Observe(time.Since(start).Seconds())
	return v, err
}

// finish assembles the outcome, records it and publishes the event.
func (o *Orchestrator) finish(ctx context.Context, r *run) models.PipelineOutcome {
	out := models.PipelineOutcome{
		RunID:  r.id,
		VIN:    r.vin,
		State:  string(r.state),
		States: make([]string, len(r.states)),
	}
	for i, s := range r.states {
		out.States[i] = string(s)
	}

	if r.state.Succeeded() && r.artifact != nil {
		loc := r.artifact.Location
		out.Location = &loc
	}
	if r.recipient != "" {
		out.Notification = r.notified
		if out.Notification == nil {
			// A fatal failure before NOTIFYING: the email was never attempted.
			out.Notification = &models.NotificationStatus{Delivered: false, Detail: "email not sent: report was not generated"}
		}
	}

	switch r.state {
	case StateCompleted:
		out.Success = true
		out.Message = MsgCompleted
	case StatePartial:
		out.Success = true
		out.Message = MsgPartial
	case StateFailedDecode:
		out.Message = MsgFailedDecode
	case StateFailedRender:
		out.Message = MsgFailedRender
	case StateFailedStore:
		out.Message = MsgFailedStore
	}
	if !out.Success && r.cause != nil {
		out.Error = r.cause.Error()
	}

	o.metrics.Runs.WithLabelValues(out.State).Inc()

	fields := []zap.Field{zap.String("state", out.State), zap.Strings("states", out.States)}
	switch {
	case r.state == StateCompleted:
		r.log.Info("report completed", fields...)
	case r.state == StatePartial:
		r.log.Warn("report stored, email failed", fields...)
	default:
		r.log.Error("report failed", append(fields, zap.Error(r.cause))...)
	}

	o.publish(ctx, r, out)
	return out
}

// publish is best-effort: a failed publish never changes the outcome.
func (o *Orchestrator) publish(ctx context.Context, r *run, out models.PipelineOutcome) {
	if o.publisher == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("publish panic", zap.Any("panic", p))
		}
	}()
	payload, err := encodeEvent(newEvent(out, o.now()))
	if err != nil {
		r.log.Warn("encode event failed", zap.Error(err))
		return
	}
	if err := o.publisher.Publish(ctx, EventsSubject, payload); err != nil {
		r.log.Warn("publish failed", zap.Error(err))
	}
}
