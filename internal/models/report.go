package models

import "time"

// ReportArtifact describes the stored document for a VIN. There is at most
// one artifact per VIN; a later render replaces it in place.
// Shared between the pipeline and storage layers.
type ReportArtifact struct {
	VIN         string    `json:"vin"`
	Location    string    `json:"location"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Digest      string    `json:"digest"`
	CreatedAt   time.Time `json:"created_at"`
}

// Attachment is a file carried by an outbound notification.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// NotificationRequest is built by the pipeline and consumed once by a
// notifier. It is never persisted.
type NotificationRequest struct {
	Recipient  string
	Subject    string
	Body       string
	VIN        string
	Location   string
	Attachment Attachment
}

// NotificationStatus reports how delivery to the requested recipient went.
type NotificationStatus struct {
	Delivered bool   `json:"ok"`
	Detail    string `json:"message"`
}

// PipelineOutcome is handed back to the caller of a report run.
//
// Location is non-nil iff the artifact was persisted. Notification is
// non-nil iff a recipient was supplied, whether or not delivery worked.
type PipelineOutcome struct {
	Success      bool                `json:"success"`
	Message      string              `json:"message"`
	Location     *string             `json:"download,omitempty"`
	Notification *NotificationStatus `json:"email"`
	Error        string              `json:"error,omitempty"`

	RunID  string   `json:"-"`
	VIN    string   `json:"-"`
	State  string   `json:"-"`
	States []string `json:"-"`
}
