package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/devghori1264/vinreport/internal/decode"
	"github.com/devghori1264/vinreport/internal/models"
	"github.com/devghori1264/vinreport/internal/notify"
	"github.com/devghori1264/vinreport/internal/render"
	"github.com/devghori1264/vinreport/internal/storage"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const accordVIN = "1HGCM82633A004352"

var pinned = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// calls records the order in which collaborators are used.
type calls struct {
	mu  sync.Mutex
	seq []string
}

func (c *calls) add(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = append(c.seq, s)
}

func (c *calls) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.seq...)
}

type fakeDecoder struct {
	calls *calls
	rec   models.VehicleRecord
	err   error
}

func (f *fakeDecoder) Fetch(ctx context.Context, vin string) (models.VehicleRecord, error) {
	f.calls.add("decode")
	if f.err != nil {
		return models.VehicleRecord{}, f.err
	}
	return f.rec, nil
}

type recordingRenderer struct {
	calls *calls
	inner render.Renderer
	err   error
}

func (r *recordingRenderer) Render(rec models.VehicleRecord, at time.Time) ([]byte, error) {
	r.calls.add("render")
	if r.err != nil {
		return nil, r.err
	}
	return r.inner.Render(rec, at)
}

type recordingStore struct {
	calls   *calls
	inner   Store
	err     error
	openErr error
}

func (s *recordingStore) Persist(ctx context.Context, vin string, content []byte) (models.ReportArtifact, error) {
	s.calls.add("store")
	if s.err != nil {
		return models.ReportArtifact{}, s.err
	}
	return s.inner.Persist(ctx, vin, content)
}

func (s *recordingStore) Open(vin string) ([]byte, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	return s.inner.Open(vin)
}

type fakeNotifier struct {
	calls *calls
	err   error
	panic bool
	got   []models.NotificationRequest
}

func (n *fakeNotifier) Send(ctx context.Context, req models.NotificationRequest) error {
	n.calls.add("notify")
	if n.panic {
		panic("mail transport exploded")
	}
	n.got = append(n.got, req)
	return n.err
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
	panic    bool
}

func (p *fakePublisher) Publish(ctx context.Context, subject string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, payload)
	if p.panic {
		panic("publisher exploded")
	}
	return p.err
}

type harness struct {
	calls     *calls
	decoder   *fakeDecoder
	renderer  *recordingRenderer
	store     *recordingStore
	files     *storage.ReportStore
	dir       string
	notifier  *fakeNotifier
	publisher *fakePublisher
	metrics   *Metrics
	spans     *tracetest.SpanRecorder
	logs      *observer.ObservedLogs
	orch      *Orchestrator
}

func accord() models.VehicleRecord {
	return models.NewVehicleRecord(accordVIN, map[string]string{
		"VIN":             accordVIN,
		"Make":            "HONDA",
		"Model":           "Accord",
		"ModelYear":       "2003",
		"BodyClass":       "Coupe",
		"EngineCylinders": "6",
		"PlantCountry":    "UNITED STATES (USA)",
	})
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	c := &calls{}
	idx, err := storage.NewMemoryIndex()
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	dir := filepath.Join(t.TempDir(), "reports")
	files := storage.NewReportStore(dir, idx, storage.WithClock(func() time.Time { return pinned }))
	t.Cleanup(func() { files.Close() })

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	core, logs := observer.New(zapcore.DebugLevel)

	h := &harness{
		calls:     c,
		decoder:   &fakeDecoder{calls: c, rec: accord()},
		renderer:  &recordingRenderer{calls: c, inner: render.New()},
		files:     files,
		dir:       dir,
		notifier:  &fakeNotifier{calls: c},
		publisher: &fakePublisher{},
		metrics:   NewMetrics(nil),
		spans:     spans,
		logs:      logs,
	}
	h.store = &recordingStore{calls: c, inner: files}
	ids := 0
	h.orch = New(h.decoder, h.renderer, h.store, h.notifier,
		WithPublisher(h.publisher),
		WithMetrics(h.metrics),
		WithTracerProvider(tp),
		WithLogger(zap.New(core)),
		WithClock(func() time.Time { return pinned }),
		WithIDs(func() string { ids++; return fmt.Sprintf("run-%d", ids) }),
	)
	return h
}

func TestRun_NoEmail(t *testing.T) {
	h := newHarness(t)
	out := h.orch.Run(context.Background(), Request{VIN: accordVIN})

	if !out.Success || out.Message != MsgCompleted {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Location == nil || *out.Location != "/reports/"+accordVIN+".pdf" {
		t.Fatalf("download = %v", out.Location)
	}
	if out.Notification != nil {
		t.Errorf("notification should be absent without a recipient, got %+v", out.Notification)
	}
	if diff := cmp.Diff([]string{"RECEIVED", "DECODING", "RENDERING", "STORED", "COMPLETED"}, out.States); diff != "" {
		t.Errorf("states (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"decode", "render", "store"}, h.calls.list()); diff != "" {
		t.Errorf("call order (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(h.dir, accordVIN+".pdf")); err != nil {
		t.Errorf("artifact not on disk: %v", err)
	}

	body, err := json.Marshal(out)
	if err != nil {
		t.Fatal(err)
	}
	var wire map[string]any
	if err := json.Unmarshal(body, &wire); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"success":  true,
		"message":  MsgCompleted,
		"download": "/reports/" + accordVIN + ".pdf",
		"email":    nil,
	}
	if diff := cmp.Diff(want, wire); diff != "" {
		t.Errorf("wire body (-want +got):\n%s", diff)
	}
}

func TestRun_EmailDelivered(t *testing.T) {
	h := newHarness(t)
	out := h.orch.Run(context.Background(), Request{VIN: accordVIN, Email: "a@b.com"})

	if !out.Success || out.State != string(StateCompleted) {
		t.Fatalf("outcome = %+v", out)
	}
	if diff := cmp.Diff(&models.NotificationStatus{Delivered: true, Detail: MsgEmailSent}, out.Notification); diff != "" {
		t.Errorf("notification (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"decode", "render", "store", "notify"}, h.calls.list()); diff != "" {
		t.Errorf("call order (-want +got):\n%s", diff)
	}

	if len(h.notifier.got) != 1 {
		t.Fatalf("expected one send, got %d", len(h.notifier.got))
	}
	req := h.notifier.got[0]
	stored, _ := h.files.Open(accordVIN)
	if req.Recipient != "a@b.com" || req.Attachment.Filename != accordVIN+".pdf" || string(req.Attachment.Content) != string(stored) {
		t.Errorf("notification request = %+v", req)
	}
	if got := testutil.ToFloat64(h.metrics.Notifications.WithLabelValues("delivered")); got != 1 {
		t.Errorf("delivered counter = %v", got)
	}
}

func TestRun_EmailFailureIsPartial(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = &notify.NotificationError{Kind: notify.KindTransport, Err: errors.New("dial tcp: connection refused")}

	out := h.orch.Run(context.Background(), Request{VIN: accordVIN, Email: "a@b.com"})

	if !out.Success {
		t.Fatal("email failure must not fail the run")
	}
	if out.State != string(StatePartial) || out.Message != MsgPartial {
		t.Errorf("state = %s, message = %q", out.State, out.Message)
	}
	if out.Location == nil {
		t.Fatal("download must be present when the artifact is stored")
	}
	if out.Notification == nil || out.Notification.Delivered || out.Notification.Detail == "" {
		t.Errorf("notification = %+v", out.Notification)
	}
	if out.Error != "" {
		t.Errorf("partial outcome should not carry a top-level error, got %q", out.Error)
	}
	if got := testutil.ToFloat64(h.metrics.Notifications.WithLabelValues("transport")); got != 1 {
		t.Errorf("transport failure counter = %v", got)
	}
	if h.logs.FilterMessage("email delivery failed").Len() != 1 {
		t.Error("expected a warning for the failed delivery")
	}
}

func TestRun_UntypedNotifierErrorIsStillRecoverable(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("boom")

	out := h.orch.Run(context.Background(), Request{VIN: accordVIN, Email: "a@b.com"})
	if !out.Success || out.State != string(StatePartial) {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestRun_NotifierPanicIsPartial(t *testing.T) {
	h := newHarness(t)
	h.notifier.panic = true

	out := h.orch.Run(context.Background(), Request{VIN: accordVIN, Email: "a@b.com"})
	if !out.Success || out.State != string(StatePartial) || out.Location == nil {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Notification == nil || out.Notification.Delivered {
		t.Errorf("notification = %+v", out.Notification)
	}
}

func TestRun_PublisherPanicKeepsOutcome(t *testing.T) {
	h := newHarness(t)
	h.publisher.panic = true

	out := h.orch.Run(context.Background(), Request{VIN: accordVIN})
	if !out.Success || out.State != string(StateCompleted) {
		t.Fatalf("outcome = %+v", out)
	}
	if n := len(h.publisher.payloads); n != 1 {
		t.Errorf("published %d times, want 1", n)
	}
	if got := testutil.ToFloat64(h.metrics.Runs.WithLabelValues("COMPLETED")); got != 1 {
		t.Errorf("completed runs = %v", got)
	}
}

func TestRun_UnreadableReportIsAttachmentFailure(t *testing.T) {
	h := newHarness(t)
	h.store.openErr = errors.New("permission denied")

	out := h.orch.Run(context.Background(), Request{VIN: accordVIN, Email: "a@b.com"})
	if !out.Success || out.State != string(StatePartial) {
		t.Fatalf("outcome = %+v", out)
	}
	if len(h.notifier.got) != 0 {
		t.Error("notifier should not be called without an attachment")
	}
	if got := testutil.ToFloat64(h.metrics.Notifications.WithLabelValues(string(notify.KindAttachment))); got != 1 {
		t.Errorf("attachment failures = %v", got)
	}
	if got := testutil.ToFloat64(h.metrics.Notifications.WithLabelValues(string(notify.KindRejected))); got != 0 {
		t.Errorf("rejected = %v", got)
	}
}

func TestRun_DecodeFailureWritesNothing(t *testing.T) {
	for _, kind := range []decode.Kind{decode.KindEmpty, decode.KindTransport, decode.KindStatus} {
		t.Run(string(kind), func(t *testing.T) {
			h := newHarness(t)
			h.decoder.err = &decode.DecodeError{VIN: "000000000000000000", Kind: kind, Err: errors.New("no results")}

			out := h.orch.Run(context.Background(), Request{VIN: "000000000000000000"})

			if out.Success || out.State != string(StateFailedDecode) {
				t.Fatalf("outcome = %+v", out)
			}
			if out.Message != MsgFailedDecode || out.Error == "" {
				t.Errorf("message = %q, error = %q", out.Message, out.Error)
			}
			if out.Location != nil {
				t.Errorf("download must be absent, got %q", *out.Location)
			}
			if diff := cmp.Diff([]string{"decode"}, h.calls.list()); diff != "" {
				t.Errorf("only decode should run (-want +got):\n%s", diff)
			}
			if _, err := os.Stat(h.dir); !os.IsNotExist(err) {
				t.Errorf("no report directory should be created, stat err = %v", err)
			}
		})
	}
}

func TestRun_DecodeFailureKeepsPreviousArtifact(t *testing.T) {
	h := newHarness(t)
	if out := h.orch.Run(context.Background(), Request{VIN: accordVIN}); !out.Success {
		t.Fatalf("first run failed: %+v", out)
	}
	before, _ := h.files.Open(accordVIN)

	h.decoder.err = &decode.DecodeError{VIN: accordVIN, Kind: decode.KindTransport, Err: errors.New("connection reset")}
	if out := h.orch.Run(context.Background(), Request{VIN: accordVIN}); out.Success {
		t.Fatal("second run should fail")
	}

	after, _ := h.files.Open(accordVIN)
	if string(before) != string(after) {
		t.Error("failed decode replaced the stored artifact")
	}
}

func TestRun_DecodeFailureWithRecipientReportsNotificationNotSent(t *testing.T) {
	h := newHarness(t)
	h.decoder.err = &decode.DecodeError{Kind: decode.KindEmpty, Err: errors.New("no results")}

	out := h.orch.Run(context.Background(), Request{VIN: "000000000000000000", Email: "a@b.com"})
	if out.Success {
		t.Fatal("expected failure")
	}
	if out.Notification == nil || out.Notification.Delivered {
		t.Errorf("notification = %+v", out.Notification)
	}
	for _, c := range h.calls.list() {
		if c == "notify" {
			t.Fatal("notifier must not run after a fatal failure")
		}
	}
}

func TestRun_RenderFailure(t *testing.T) {
	h := newHarness(t)
	h.renderer.err = &render.RenderError{Kind: render.KindWrite, Err: errors.New("out of memory")}

	out := h.orch.Run(context.Background(), Request{VIN: accordVIN, Email: "a@b.com"})
	if out.Success || out.State != string(StateFailedRender) || out.Message != MsgFailedRender {
		t.Fatalf("outcome = %+v", out)
	}
	if diff := cmp.Diff([]string{"decode", "render"}, h.calls.list()); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
}

func TestRun_StoreFailure(t *testing.T) {
	h := newHarness(t)
	h.store.err = errors.New("no space left on device")

	out := h.orch.Run(context.Background(), Request{VIN: accordVIN, Email: "a@b.com"})
	if out.Success || out.State != string(StateFailedStore) || out.Message != MsgFailedStore {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Location != nil {
		t.Error("download must be absent when persistence failed")
	}
	if out.Error == "" {
		t.Error("expected the store cause in the error field")
	}
	if diff := cmp.Diff([]string{"decode", "render", "store"}, h.calls.list()); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
}

func TestRun_IgnoresCallerCancellation(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := h.orch.Run(ctx, Request{VIN: accordVIN})
	if !out.Success {
		t.Fatalf("a started run should complete after the caller goes away: %+v", out)
	}
}

func TestRun_PublishesEventAndToleratesPublishFailure(t *testing.T) {
	h := newHarness(t)
	h.publisher.err = errors.New("nats: connection closed")

	out := h.orch.Run(context.Background(), Request{VIN: accordVIN})
	if !out.Success {
		t.Fatalf("publish failure changed the outcome: %+v", out)
	}
	if len(h.publisher.payloads) != 1 || h.publisher.subjects[0] != EventsSubject {
		t.Fatalf("published %d events to %v", len(h.publisher.payloads), h.publisher.subjects)
	}
	var ev Event
	if err := json.Unmarshal(h.publisher.payloads[0], &ev); err != nil {
		t.Fatal(err)
	}
	want := Event{
		Event:     "report.completed",
		RunID:     "run-1",
		VIN:       accordVIN,
		State:     "COMPLETED",
		Success:   true,
		Download:  "/reports/" + accordVIN + ".pdf",
		Timestamp: pinned.Unix(),
	}
	if diff := cmp.Diff(want, ev); diff != "" {
		t.Errorf("event (-want +got):\n%s", diff)
	}
}

func TestRun_MetricsAndSpans(t *testing.T) {
	h := newHarness(t)
	h.orch.Run(context.Background(), Request{VIN: accordVIN})
	h.decoder.err = &decode.DecodeError{Kind: decode.KindEmpty, Err: errors.New("none")}
	h.orch.Run(context.Background(), Request{VIN: accordVIN})

	if got := testutil.ToFloat64(h.metrics.Runs.WithLabelValues("COMPLETED")); got != 1 {
		t.Errorf("completed runs = %v", got)
	}
	if got := testutil.ToFloat64(h.metrics.Runs.WithLabelValues("FAILED_DECODE")); got != 1 {
		t.Errorf("failed decode runs = %v", got)
	}
	if got := testutil.ToFloat64(h.metrics.InFlight); got != 0 {
		t.Errorf("in flight = %v", got)
	}

	var names []string
	for _, s := range h.spans.Ended() {
		names = append(names, s.Name())
	}
	want := []string{
		"pipeline.decode", "pipeline.render", "pipeline.store", "pipeline.run",
		"pipeline.decode", "pipeline.run",
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("spans (-want +got):\n%s", diff)
	}
}

func TestRun_ConcurrentDifferentVINs(t *testing.T) {
	h := newHarness(t)
	dec := decoderFunc(func(ctx context.Context, vin string) (models.VehicleRecord, error) {
		return models.NewVehicleRecord(vin, map[string]string{"Make": "HONDA"}), nil
	})
	orch := New(dec, render.New(), h.files, nil)

	vins := []string{"VIN00000000000001", "VIN00000000000002", "VIN00000000000003", "VIN00000000000004"}
	var wg sync.WaitGroup
	results := make([]models.PipelineOutcome, len(vins))
	for i, v := range vins {
		wg.Add(1)
		go func(i int, v string) {
			defer wg.Done()
			results[i] = orch.Run(context.Background(), Request{VIN: v})
		}(i, v)
	}
	wg.Wait()

	for i, out := range results {
		if !out.Success || out.Location == nil || *out.Location != "/reports/"+vins[i]+".pdf" {
			t.Errorf("run %d: %+v", i, out)
		}
	}
}

type decoderFunc func(ctx context.Context, vin string) (models.VehicleRecord, error)

func (f decoderFunc) Fetch(ctx context.Context, vin string) (models.VehicleRecord, error) {
	return f(ctx, vin)
}
