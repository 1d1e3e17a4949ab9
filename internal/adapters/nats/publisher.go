package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/samirrijal/sarpipe/internal/core/domain"
)

// Subjects published by the pipeline.
const (
	SubjectRunCompleted = "sarpipe.runs.completed"
	SubjectRunFailed    = "sarpipe.runs.failed"
)

// RunEvent is the payload announcing a finished run.
type RunEvent struct {
	RunID        string    `json:"run_id"`
	CatalogPath  string    `json:"catalog_path,omitempty"`
	RemotePrefix string    `json:"remote_prefix,omitempty"`
	Corrected    int       `json:"corrected"`
	Failed       int       `json:"failed"`
	Error        string    `json:"error,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}

// NewRunEvent summarizes a report into an event.
func NewRunEvent(report *domain.RunReport) RunEvent {
	corrected, failed := report.Counts()
	ev := RunEvent{
		RunID:      report.RunID,
		Corrected:  corrected,
		Failed:     failed,
		Error:      report.Error,
		FinishedAt: report.FinishedAt,
	}
	if report.Catalog != nil {
		ev.CatalogPath = report.Catalog.CatalogPath
		ev.RemotePrefix = report.Catalog.RemotePrefix
	}
	return ev
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return newPublisher(conn, 5*time.Second)
}

// newPublisher ensures the run stream exists on conn. conn is closed when
// that fails.
func newPublisher(conn *nats.Conn, wait time.Duration) (*Publisher, error) {
	js, err := conn.JetStream(nats.MaxWait(wait))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := nats.StreamConfig{
		Name:      "SARPIPE_RUNS",
		Subjects:  []string{"sarpipe.runs.>"},
		Retention: nats.InterestPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// The stream may already exist.
		if _, err := js.UpdateStream(&cfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishRunCompleted publishes the run summary on sarpipe.runs.completed,
// or sarpipe.runs.failed when no catalog was produced.
func (p *Publisher) PublishRunCompleted(ctx context.Context, report *domain.RunReport) error {
	data, err := json.Marshal(NewRunEvent(report))
	if err != nil {
		return err
	}
	subject := SubjectRunCompleted
	if report.Catalog == nil {
		subject = SubjectRunFailed
	}
	_, err = p.js.Publish(subject, data, nats.Context(ctx))
	return err
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// Conn returns the underlying connection.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}
