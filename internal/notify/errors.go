package notify

import "fmt"

// Kind classifies delivery failures.
type Kind string

const (
	KindTransport Kind = "transport"
	KindAuth      Kind = "auth"
	KindRecipient Kind = "recipient"
	KindRejected  Kind = "rejected"
	KindConfig    Kind = "config"
	// KindAttachment means the report could not be loaded for attaching;
	// the delivery service was never called.
	KindAttachment Kind = "attachment"
)

// NotificationError is recoverable at the pipeline level: the artifact it
// was carrying is already stored.
type NotificationError struct {
	Kind       Kind
	Recipient  string
	StatusCode int
	Err        error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Kind, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }
