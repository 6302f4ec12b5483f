package graph

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultWriteBatchSize is the number of rows bound to one MERGE query.
const DefaultWriteBatchSize = 2000

// WriteResult reports one Write call: how many rows were merged, how many
// queries ran, and (for edges) how many rows were dropped because an
// endpoint node was missing.
type WriteResult struct {
	TotalWritten    int
	BatchesExecuted int
	Skipped         int
}

// Writer persists typed records into the graph store as batched idempotent
// MERGE upserts. It expects records already validated and normalised at the
// ingest boundary.
type Writer struct {
	store     Store
	batchSize int
	log       *slog.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithWriteBatchSize overrides the rows-per-query batch size.
func WithWriteBatchSize(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithWriterLogger sets the writer's logger.
func WithWriterLogger(log *slog.Logger) WriterOption {
	return func(w *Writer) {
		if log != nil {
			w.log = log
		}
	}
}

// NewWriter creates a batched writer over a graph store.
func NewWriter(store Store, opts ...WriterOption) *Writer {
	w := &Writer{
		store:     store,
		batchSize: DefaultWriteBatchSize,
		log:       slog.Default().With("component", "graph"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Writer) WriteComposeFiles(ctx context.Context, recs []ComposeFile) (WriteResult, error) {
	rows := make([]map[string]any, len(recs))
	for i := range recs {
		rows[i] = recs[i].row()
	}
	return w.writeNodes(ctx, composeFileSpec, rows)
}

func (w *Writer) WriteComposeServices(ctx context.Context, recs []ComposeService) (WriteResult, error) {
	rows := make([]map[string]any, len(recs))
	for i := range recs {
		rows[i] = recs[i].row()
	}
	return w.writeNodes(ctx, composeServiceSpec, rows)
}

func (w *Writer) WritePortBindings(ctx context.Context, recs []PortBinding) (WriteResult, error) {
	rows := make([]map[string]any, len(recs))
	for i := range recs {
		rows[i] = recs[i].row()
	}
	return w.writeNodes(ctx, portBindingSpec, rows)
}

func (w *Writer) WriteServiceDependencies(ctx context.Context, recs []ServiceDependency) (WriteResult, error) {
	rows := make([]map[string]any, len(recs))
	for i := range recs {
		rows[i] = recs[i].row()
	}
	return w.writeEdges(ctx, serviceDependencySpec, rows)
}

func (w *Writer) WriteTailscaleDevices(ctx context.Context, recs []TailscaleDevice) (WriteResult, error) {
	rows := make([]map[string]any, len(recs))
	for i := range recs {
		rows[i] = recs[i].row()
	}
	return w.writeNodes(ctx, tailscaleDeviceSpec, rows)
}

func (w *Writer) WriteTailscaleNetworks(ctx context.Context, recs []TailscaleNetwork) (WriteResult, error) {
	rows := make([]map[string]any, len(recs))
	for i := range recs {
		rows[i] = recs[i].row()
	}
	return w.writeNodes(ctx, tailscaleNetworkSpec, rows)
}

func (w *Writer) WriteUnifiDevices(ctx context.Context, recs []UnifiDevice) (WriteResult, error) {
	rows := make([]map[string]any, len(recs))
	for i := range recs {
		rows[i] = recs[i].row()
	}
	return w.writeNodes(ctx, unifiDeviceSpec, rows)
}

func (w *Writer) WriteUnifiClients(ctx context.Context, recs []UnifiClient) (WriteResult, error) {
	rows := make([]map[string]any, len(recs))
	for i := range recs {
		rows[i] = recs[i].row()
	}
	return w.writeNodes(ctx, unifiClientSpec, rows)
}

func (w *Writer) WriteDeviceNetworkRels(ctx context.Context, recs []DeviceNetworkMembership) (WriteResult, error) {
	rows := make([]map[string]any, len(recs))
	for i := range recs {
		rows[i] = recs[i].row()
	}
	return w.writeEdges(ctx, deviceNetworkRelSpec, rows)
}

func (w *Writer) WriteEmails(ctx context.Context, recs []Email) (WriteResult, error) {
	rows := make([]map[string]any, len(recs))
	for i := range recs {
		rows[i] = recs[i].row()
	}
	return w.writeNodes(ctx, emailSpec, rows)
}

func (w *Writer) WriteThreads(ctx context.Context, recs []Thread) (WriteResult, error) {
	rows := make([]map[string]any, len(recs))
	for i := range recs {
		rows[i] = recs[i].row()
	}
	return w.writeNodes(ctx, threadSpec, rows)
}

func (w *Writer) WriteAttachments(ctx context.Context, recs []Attachment) (WriteResult, error) {
	rows := make([]map[string]any, len(recs))
	for i := range recs {
		rows[i] = recs[i].row()
	}
	return w.writeNodes(ctx, attachmentSpec, rows)
}

func (w *Writer) WriteEmailThreadRels(ctx context.Context, recs []EmailThreadRel) (WriteResult, error) {
	rows := make([]map[string]any, len(recs))
	for i := range recs {
		rows[i] = recs[i].row()
	}
	return w.writeEdges(ctx, emailThreadRelSpec, rows)
}

func (w *Writer) WriteAttachmentRels(ctx context.Context, recs []AttachmentRel) (WriteResult, error) {
	rows := make([]map[string]any, len(recs))
	for i := range recs {
		rows[i] = recs[i].row()
	}
	return w.writeEdges(ctx, attachmentRelSpec, rows)
}

func (w *Writer) WriteAPIKeys(ctx context.Context, recs []APIKey) (WriteResult, error) {
	rows := make([]map[string]any, len(recs))
	for i := range recs {
		rows[i] = recs[i].row()
	}
	return w.writeNodes(ctx, apiKeySpec, rows)
}

// writeNodes slices rows into batches and runs one MERGE query per batch.
// Empty input performs zero I/O.
func (w *Writer) writeNodes(ctx context.Context, spec nodeSpec, rows []map[string]any) (WriteResult, error) {
	var res WriteResult
	if len(rows) == 0 {
		return res, nil
	}
	query := spec.query()
	for start := 0; start < len(rows); start += w.batchSize {
		end := min(start+w.batchSize, len(rows))
		merged, err := w.runBatch(ctx, query, rows[start:end])
		if err != nil {
			w.log.Error("node batch failed", "label", spec.Label,
				"batch", res.BatchesExecuted, "rows", end-start, "error", err)
			return res, fmt.Errorf("graph: writing %s batch: %w", spec.Label, err)
		}
		res.TotalWritten += merged
		res.BatchesExecuted++
	}
	w.log.Info("nodes written", "label", spec.Label,
		"total", res.TotalWritten, "batches", res.BatchesExecuted)
	return res, nil
}

// writeEdges is writeNodes for relationships. Rows whose endpoints are not
// both present in the graph are filtered inside the query; the shortfall is
// counted and logged, never an error.
func (w *Writer) writeEdges(ctx context.Context, spec edgeSpec, rows []map[string]any) (WriteResult, error) {
	var res WriteResult
	if len(rows) == 0 {
		return res, nil
	}
	query := spec.query()
	for start := 0; start < len(rows); start += w.batchSize {
		end := min(start+w.batchSize, len(rows))
		merged, err := w.runBatch(ctx, query, rows[start:end])
		if err != nil {
			w.log.Error("edge batch failed", "type", spec.Type,
				"batch", res.BatchesExecuted, "rows", end-start, "error", err)
			return res, fmt.Errorf("graph: writing %s batch: %w", spec.Type, err)
		}
		res.TotalWritten += merged
		res.BatchesExecuted++
		if skipped := (end - start) - merged; skipped > 0 {
			res.Skipped += skipped
			w.log.Warn("edge rows skipped: missing endpoints",
				"type", spec.Type, "skipped", skipped, "rows", end-start)
		}
	}
	w.log.Info("edges written", "type", spec.Type,
		"total", res.TotalWritten, "batches", res.BatchesExecuted, "skipped", res.Skipped)
	return res, nil
}

// runBatch opens a session scoped to one batch and closes it on all exit
// paths.
func (w *Writer) runBatch(ctx context.Context, query string, rows []map[string]any) (int, error) {
	sess, err := w.store.Session(ctx)
	if err != nil {
		return 0, err
	}
	defer sess.Close(ctx)

	merged, err := sess.ExecuteWrite(ctx, query, map[string]any{"rows": rows})
	if err != nil {
		return 0, err
	}
	return int(merged), nil
}
