package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/devghori1264/vinreport/internal/models"
)

// EventsSubject is where run outcomes are published.
const EventsSubject = "reports.events"

// Publisher is satisfied by the NATS publisher.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
}

// Event is the payload published once per finished run.
type Event struct {
	Event     string `json:"event"`
	RunID     string `json:"run_id"`
	VIN       string `json:"vin"`
	State     string `json:"state"`
	Success   bool   `json:"success"`
	Download  string `json:"download,omitempty"`
	Emailed   *bool  `json:"emailed,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"time"`
}

func eventName(s State) string {
	switch s {
	case StateCompleted:
		return "report.completed"
	case StatePartial:
		return "report.partial"
	default:
		return "report.failed"
	}
}

func newEvent(out models.PipelineOutcome, at time.Time) Event {
	ev := Event{
		Event:     eventName(State(out.State)),
		RunID:     out.RunID,
		VIN:       out.VIN,
		State:     out.State,
		Success:   out.Success,
		Error:     out.Error,
		Timestamp: at.Unix(),
	}
	if out.Location != nil {
		ev.Download = *out.Location
	}
	if out.Notification != nil {
		delivered := out.Notification.Delivered
		ev.Emailed = &delivered
	}
	return ev
}

func encodeEvent(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}
