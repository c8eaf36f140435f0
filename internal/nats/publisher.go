package natsclient

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("nats not connected")

// Publisher sends report outcome events. It satisfies pipeline.Publisher.
type Publisher struct {
	nc  *nats.Conn
	url string
	log *zap.Logger
}

// NewPublisher connects to url and keeps reconnecting forever in the
// background; publishes while disconnected are buffered by the client.
func NewPublisher(url, name string, log *zap.Logger) (*Publisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	nc, err := nats.Connect(url, connectOptions(name, log)...)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, url: url, log: log}, nil
}

func connectOptions(name string, log *zap.Logger) []nats.Option {
	return []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
}

func (p *Publisher) Publish(ctx context.Context, subject string, payload []byte) error {
	if p.nc == nil || p.nc.IsClosed() {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.nc.Publish(subject, payload)
}

func (p *Publisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

// Subscribe delivers every message on subject to fn until ctx is done.
func Subscribe(ctx context.Context, url, subject string, log *zap.Logger, fn func(subject string, data []byte)) error {
	if log == nil {
		log = zap.NewNop()
	}
	nc, err := nats.Connect(url, connectOptions("vinctl-watch", log)...)
	if err != nil {
		return err
	}
	defer nc.Close()

	sub, err := nc.Subscribe(subject, func(m *nats.Msg) {
		fn(m.Subject, m.Data)
	})
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	<-ctx.Done()
	return nil
}
