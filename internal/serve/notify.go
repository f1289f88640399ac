package serve

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/MarkBind/markbind-sub000/internal/events"
	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
)

// Publisher forwards rebuild events to a NATS subject so that other tools
// (browser farms, search indexers) can follow the preview.
type Publisher struct {
	conn    *nats.Conn
	subject string
	log     *slog.Logger
}

// NewPublisher connects to url.
func NewPublisher(url, subject string, log *slog.Logger) (*Publisher, error) {
	if url == "" || subject == "" {
		return nil, ferrors.ConfigError("NATS url and subject are required").Build()
	}
	if log == nil {
		log = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("markbind-serve"),
		nats.Timeout(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryServe, "connect to NATS").
			WithContext("url", url).
			Build()
	}
	log.Info("Publishing rebuild events to NATS", "url", url, "subject", subject)
	return &Publisher{conn: conn, subject: subject, log: log}, nil
}

// Publish sends evt as JSON.
func (p *Publisher) Publish(evt events.PagesRebuilt) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "encode rebuild event").Build()
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryServe, "publish rebuild event").
			WithContext("subject", p.subject).
			Build()
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.log.Debug("NATS drain failed", "error", err)
		p.conn.Close()
	}
}
