package status

import (
	"context"
	"encoding/json"
	log "log/slog"
	"time"

	ws "github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeTimeout   = 2 * time.Second
	redialInterval = 5 * time.Second
)

// Publisher drains a Sink into the log and, when a display URL is set, into
// the display websocket. A missing display only costs the events.
type Publisher struct {
	url    string
	conn   *ws.Conn
	redial *rate.Limiter
}

func NewPublisher(url string) *Publisher {
	return &Publisher{
		url:    url,
		redial: rate.NewLimiter(rate.Every(redialInterval), 1),
	}
}

// Run forwards events until ctx is done, then flushes what is still queued
// over the open connection, if any, without redialing.
func (p *Publisher) Run(ctx context.Context, sink *Sink) {
	defer p.close()

	for {
		select {
		case <-ctx.Done():
			p.flush(sink)
			return
		case ev := <-sink.Events():
			logEvent(ev)
			if p.url != "" {
				p.send(ctx, ev)
			}
		}
	}
}

func (p *Publisher) flush(sink *Sink) {
	for {
		select {
		case ev := <-sink.Events():
			logEvent(ev)
			if p.conn != nil {
				p.write(ev)
			}
		default:
			return
		}
	}
}

func (p *Publisher) send(ctx context.Context, ev Event) {
	if p.conn == nil {
		if !p.redial.Allow() {
			return
		}
		conn, _, err := ws.DefaultDialer.DialContext(ctx, p.url, nil)
		if err != nil {
			log.Warn("Status display unreachable", "url", p.url, "err", err)
			return
		}
		log.Info("Connected to status display", "url", p.url)
		p.conn = conn
	}
	p.write(ev)
}

func (p *Publisher) write(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := p.conn.WriteMessage(ws.TextMessage, data); err != nil {
		log.Warn("Failed to push status", "err", err)
		p.close()
	}
}

func (p *Publisher) close() {
	if p.conn != nil {
		_ = p.conn.WriteControl(ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		p.conn.Close()
		p.conn = nil
	}
}

func logEvent(ev Event) {
	switch ev.Category {
	case Error:
		log.Error(ev.Message, "status", ev.Category)
	case Listening, Actuator:
		log.Debug(ev.Message, "status", ev.Category)
	default:
		log.Info(ev.Message, "status", ev.Category)
	}
}
