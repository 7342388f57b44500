package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/DocSenseAI/docsense-mvp/pkg/metrics"
)

const (
	// SubjectReindex carries re-index jobs published by the API server.
	SubjectReindex = "docsense.reindex"
	// SubjectReindexDLQ receives jobs that exhausted their retries.
	SubjectReindexDLQ = "docsense.reindex.dlq"
	// MaxRetries before a job is sent to the DLQ.
	MaxRetries = 3

	retryHeader = "X-Retry-Count"
)

// Job is a re-index request carried over NATS. Path points at the stored
// upload on shared storage; the consumer re-extracts and re-indexes it.
// Because point ids are deterministic, replaying a job converges to the
// same set of records.
type Job struct {
	TenantID   int64  `json:"tenant_id"`
	DocumentID int64  `json:"document_id"`
	Source     string `json:"source"`
	Path       string `json:"path"`
}

// ConsumerDeps holds the consumer's collaborators. The counters are
// optional; nil counters are not recorded.
type ConsumerDeps struct {
	Indexer  *Indexer
	LoadText func(path string) (string, error)
	Logger   *slog.Logger

	Processed    *metrics.Counter
	Failed       *metrics.Counter
	DeadLettered *metrics.Counter
}

// DeadLetter is the DLQ record for a job that exhausted its retries.
type DeadLetter struct {
	Job     Job    `json:"job"`
	Error   string `json:"error"`
	Retries int    `json:"retries"`
}

// publisher is the slice of the NATS connection the handler needs to
// requeue a job or dead-letter it.
type publisher interface {
	Publish(subject string, data []byte) error
	PublishMsg(msg *nats.Msg) error
}

// StartConsumer subscribes to the re-index subject and drains jobs through
// the Indexer with retry and DLQ support.
func StartConsumer(nc *nats.Conn, deps ConsumerDeps) (*nats.Subscription, error) {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return nc.Subscribe(SubjectReindex, func(msg *nats.Msg) {
		handleMessage(context.Background(), msg, nc, deps, log)
	})
}

// handleMessage runs one job. A failed job is requeued with an incremented
// retry header until MaxRetries, then published to the DLQ instead.
func handleMessage(ctx context.Context, msg *nats.Msg, pub publisher, deps ConsumerDeps, log *slog.Logger) {
	var job Job
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		log.Error("reindex: unmarshal failed", "error", err)
		return
	}

	retries := 0
	if msg.Header != nil {
		if v := msg.Header.Get(retryHeader); v != "" {
			fmt.Sscanf(v, "%d", &retries)
		}
	}

	err := runJob(ctx, deps, job)
	if err == nil {
		inc(deps.Processed)
		log.Info("reindex: done", "tenant_id", job.TenantID, "document_id", job.DocumentID)
		return
	}

	inc(deps.Failed)
	retries++
	log.Error("reindex: job failed",
		"error", err,
		"document_id", job.DocumentID,
		"retry", retries,
	)

	if retries >= MaxRetries {
		inc(deps.DeadLettered)
		dlq := DeadLetter{Job: job, Error: err.Error(), Retries: retries}
		data, _ := json.Marshal(dlq)
		if err := pub.Publish(SubjectReindexDLQ, data); err != nil {
			log.Error("reindex: DLQ publish failed", "error", err)
		}
		return
	}

	retryMsg := nats.NewMsg(SubjectReindex)
	retryMsg.Data = msg.Data
	retryMsg.Header = nats.Header{}
	retryMsg.Header.Set(retryHeader, fmt.Sprintf("%d", retries))
	if err := pub.PublishMsg(retryMsg); err != nil {
		log.Error("reindex: retry publish failed", "error", err)
	}
}

func inc(c *metrics.Counter) {
	if c != nil {
		c.Inc()
	}
}

func runJob(ctx context.Context, deps ConsumerDeps, job Job) error {
	text, err := deps.LoadText(job.Path)
	if err != nil {
		return fmt.Errorf("load %s: %w", job.Path, err)
	}
	_, err = deps.Indexer.Index(ctx, Document{
		TenantID:   job.TenantID,
		DocumentID: job.DocumentID,
		Source:     job.Source,
		Text:       text,
	})
	return err
}
