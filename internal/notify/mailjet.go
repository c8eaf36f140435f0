package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/devghori1264/vinreport/internal/models"
	"github.com/mailjet/mailjet-apiv3-go/v4"
	"go.uber.org/zap"
)

// MailjetConfig holds the Send API credentials and sender identity.
type MailjetConfig struct {
	APIKey     string
	SecretKey  string
	Sender     string
	SenderName string
	// BaseURL overrides the API root; empty means Mailjet's default.
	BaseURL string
	// Timeout bounds each Send API call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// DefaultTimeout bounds a Send API call when none is configured.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a non-200 response is kept for errors.
const maxErrorBody = 64 << 10

// Mailjet sends reports through the Mailjet Send API v3.1.
type Mailjet struct {
	send       func(context.Context, *mailjet.MessagesV31) (*mailjet.ResultsV31, error)
	sender     string
	senderName string
	log        *zap.Logger
}

// NewMailjet builds the process-wide Mailjet client. It is read-only after
// construction and safe for concurrent Sends.
func NewMailjet(cfg MailjetConfig, log *zap.Logger) (*Mailjet, error) {
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("mailjet: api key and secret key are required")
	}
	if cfg.Sender == "" {
		return nil, fmt.Errorf("mailjet: sender address is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := &statusClient{HTTPClient: mailjet.NewHTTPClient(cfg.APIKey, cfg.SecretKey)}
	httpClient.SetClient(&http.Client{Timeout: timeout})
	smtpClient := mailjet.NewSMTPClient(cfg.APIKey, cfg.SecretKey)
	var client *mailjet.Client
	if cfg.BaseURL != "" {
		client = mailjet.NewClient(httpClient, smtpClient, cfg.BaseURL)
	} else {
		client = mailjet.NewClient(httpClient, smtpClient)
	}

	name := cfg.SenderName
	if name == "" {
		name = DefaultSenderName
	}
	return &Mailjet{
		send: func(ctx context.Context, m *mailjet.MessagesV31) (*mailjet.ResultsV31, error) {
			return client.SendMailV31(m, mailjet.WithContext(ctx))
		},
		sender:     cfg.Sender,
		senderName: name,
		log:        log,
	}, nil
}

// statusClient answers every non-200 Send API response with an
// *APIStatusError so the real status code survives. The library would
// otherwise decode 401 and 403 bodies into shapes that drop it.
type statusClient struct {
	*mailjet.HTTPClient
}

func (c *statusClient) SendMailV31(req *http.Request) (*http.Response, error) {
	res, err := c.Client().Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, &APIStatusError{StatusCode: res.StatusCode, Body: body}
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	res.Body = io.NopCloser(bytes.NewReader(body))
	return res, nil
}

// APIStatusError is a non-200 answer from the Send API.
type APIStatusError struct {
	StatusCode int
	Body       []byte
}

func (e *APIStatusError) Error() string {
	msg := strings.TrimSpace(string(e.Body))
	var info mailjet.ErrorInfoV31
	if json.Unmarshal(e.Body, &info) == nil && info.Message != "" {
		msg = info.Message
	}
	if msg == "" {
		return fmt.Sprintf("mailjet responded %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("mailjet responded %d: %s", e.StatusCode, msg)
}

// Send delivers req as a single message with the report attached.
func (m *Mailjet) Send(ctx context.Context, req models.NotificationRequest) error {
	if err := ValidateRecipient(req.Recipient); err != nil {
		return err
	}
	if len(req.Attachment.Content) == 0 {
		return &NotificationError{Kind: KindRejected, Recipient: req.Recipient, Err: fmt.Errorf("attachment is empty")}
	}
	if err := ctx.Err(); err != nil {
		return &NotificationError{Kind: KindTransport, Recipient: req.Recipient, Err: err}
	}

	messages := &mailjet.MessagesV31{Info: []mailjet.InfoMessagesV31{m.message(req)}}
	res, err := m.send(ctx, messages)
	if err != nil {
		return classifyMailjetError(req.Recipient, err)
	}
	if res == nil || len(res.ResultsV31) == 0 {
		return &NotificationError{Kind: KindRejected, Recipient: req.Recipient, Err: fmt.Errorf("mailjet returned no message results")}
	}
	for _, r := range res.ResultsV31 {
		if !strings.EqualFold(r.Status, "success") {
			return &NotificationError{Kind: KindRejected, Recipient: req.Recipient, Err: fmt.Errorf("mailjet message status %q", r.Status)}
		}
	}

	m.log.Info("report emailed",
		zap.String("vin", req.VIN),
		zap.String("recipient", req.Recipient),
		zap.Int("attachment_bytes", len(req.Attachment.Content)),
	)
	return nil
}

func (m *Mailjet) message(req models.NotificationRequest) mailjet.InfoMessagesV31 {
	return mailjet.InfoMessagesV31{
		From: &mailjet.RecipientV31{
			Email: m.sender,
			Name:  m.senderName,
		},
		To: &mailjet.RecipientsV31{
			mailjet.RecipientV31{Email: req.Recipient},
		},
		Subject:  req.Subject,
		TextPart: req.Body,
		Attachments: &mailjet.AttachmentsV31{
			mailjet.AttachmentV31{
				ContentType:   req.Attachment.ContentType,
				Filename:      req.Attachment.Filename,
				Base64Content: base64.StdEncoding.EncodeToString(req.Attachment.Content),
			},
		},
		CustomID: "vinreport-" + req.VIN,
	}
}

// classifyMailjetError maps Mailjet client errors onto delivery kinds.
func classifyMailjetError(recipient string, err error) *NotificationError {
	ne := &NotificationError{Recipient: recipient, Err: err}

	var status *APIStatusError
	if errors.As(err, &status) {
		ne.StatusCode = status.StatusCode
		switch {
		case status.StatusCode == http.StatusUnauthorized || status.StatusCode == http.StatusForbidden:
			ne.Kind = KindAuth
		case status.StatusCode == http.StatusBadRequest:
			var feedback mailjet.APIFeedbackErrorsV31
			ne.Kind = KindRejected
			if json.Unmarshal(status.Body, &feedback) == nil {
				ne.Kind = feedbackKind(&feedback, ne.Kind)
			}
		default:
			ne.Kind = KindRejected
		}
		return ne
	}

	var feedback *mailjet.APIFeedbackErrorsV31
	if errors.As(err, &feedback) {
		ne.StatusCode = http.StatusBadRequest
		ne.Kind = feedbackKind(feedback, KindRejected)
		return ne
	}

	var info *mailjet.ErrorInfoV31
	if errors.As(err, &info) {
		ne.StatusCode = info.StatusCode
		switch info.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			ne.Kind = KindAuth
		default:
			ne.Kind = KindRejected
		}
		return ne
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		ne.Kind = KindTransport
		return ne
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "unauthorized"):
		ne.Kind = KindAuth
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") || strings.Contains(msg, "eof"):
		ne.Kind = KindTransport
	default:
		ne.Kind = KindRejected
	}
	return ne
}

// feedbackKind inspects per-message errors from a 400 response.
func feedbackKind(feedback *mailjet.APIFeedbackErrorsV31, fallback Kind) Kind {
	kind := fallback
	for _, msg := range feedback.Messages {
		for _, detail := range msg.Errors {
			if detail.StatusCode == http.StatusUnauthorized || detail.StatusCode == http.StatusForbidden {
				return KindAuth
			}
			for _, rel := range detail.ErrorRelatedTo {
				if strings.Contains(rel, "To") {
					kind = KindRecipient
				}
			}
		}
	}
	return kind
}
