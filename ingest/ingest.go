// Package ingest is the use case between readers and persistence: it runs a
// reader, validates every record once at the boundary, writes graph records
// through the batched writer and documents into the document store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmagar/taboot"
	"github.com/jmagar/taboot/cache"
	"github.com/jmagar/taboot/docstore"
	"github.com/jmagar/taboot/graph"
	"github.com/jmagar/taboot/reader"
	"github.com/jmagar/taboot/worker"
)

// Result counts what one ingest run persisted, per family.
type Result struct {
	Nodes     map[string]int `json:"nodes"`
	Edges     map[string]int `json:"edges"`
	Skipped   int            `json:"skipped"`
	Documents int            `json:"documents"`
}

// Service drives one reader payload into the writer and the document store.
type Service struct {
	writer *graph.Writer
	docs   docstore.Store
	queue  *cache.Store
	log    *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithQueue makes the service enqueue each ingested document on the
// extraction queue, for deployments running the background worker.
func WithQueue(store *cache.Store) ServiceOption {
	return func(s *Service) { s.queue = store }
}

// WithLogger sets the service's logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService returns an ingest service. writer may be nil when no graph
// store is configured; graph families then error at ingest time.
func NewService(writer *graph.Writer, docs docstore.Store, opts ...ServiceOption) *Service {
	s := &Service{
		writer: writer,
		docs:   docs,
		log:    slog.Default().With("component", "ingest"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reads the source and persists the payload. Any validation error
// aborts the run before the first write.
func (s *Service) Run(ctx context.Context, r reader.Reader) (*Result, error) {
	payload, err := r.Read(ctx)
	if err != nil {
		return nil, err
	}
	return s.Persist(ctx, payload)
}

// record is the per-family validation contract.
type record interface {
	Normalize()
	Validate() error
}

// validateAll normalizes then validates every record of one family.
func validateAll[T any, P interface {
	*T
	record
}](family string, recs []T) error {
	for i := range recs {
		p := P(&recs[i])
		p.Normalize()
		if err := p.Validate(); err != nil {
			return fmt.Errorf("ingest: %s record %d: %w", family, i, err)
		}
	}
	return nil
}

// Persist validates the whole payload first, then writes: all nodes before
// all edges so endpoint lookups can succeed within one run.
func (s *Service) Persist(ctx context.Context, payload *reader.Payload) (*Result, error) {
	if err := s.validate(payload); err != nil {
		return nil, err
	}
	res := &Result{Nodes: map[string]int{}, Edges: map[string]int{}}

	if s.hasGraphRecords(payload) {
		if s.writer == nil {
			return nil, fmt.Errorf("ingest: payload has graph records: %w", taboot.ErrGraphUnavailable)
		}
		if err := s.writeGraph(ctx, payload, res); err != nil {
			return nil, err
		}
	}

	for _, doc := range payload.Documents {
		// Re-ingested content keeps its document id so repeat runs upsert
		// instead of duplicating.
		if doc.ContentHash != "" {
			existing, err := s.docs.FindByContentHash(ctx, doc.ContentHash)
			switch {
			case err == nil:
				doc.DocID = existing.DocID
				doc.IngestedAt = existing.IngestedAt
			case !errors.Is(err, docstore.ErrNotFound):
				return nil, fmt.Errorf("ingest: dedup lookup for %s: %w", doc.SourceURL, err)
			}
		}
		if err := s.docs.UpdateDocument(ctx, doc); err != nil {
			return nil, fmt.Errorf("ingest: storing document %s: %w", doc.DocID, err)
		}
		res.Documents++
		if s.queue != nil {
			if err := worker.Enqueue(s.queue, doc.DocID); err != nil {
				return nil, fmt.Errorf("ingest: enqueueing document %s: %w", doc.DocID, err)
			}
		}
	}

	s.log.Info("ingest complete",
		"nodes", res.Nodes, "edges", res.Edges, "skipped", res.Skipped, "documents", res.Documents)
	return res, nil
}

func (s *Service) validate(p *reader.Payload) error {
	if err := validateAll[graph.ComposeFile]("compose_file", p.ComposeFiles); err != nil {
		return err
	}
	if err := validateAll[graph.ComposeService]("compose_service", p.ComposeServices); err != nil {
		return err
	}
	if err := validateAll[graph.PortBinding]("port_binding", p.PortBindings); err != nil {
		return err
	}
	if err := validateAll[graph.ServiceDependency]("service_dependency", p.ServiceDependencies); err != nil {
		return err
	}
	if err := validateAll[graph.TailscaleDevice]("tailscale_device", p.TailscaleDevices); err != nil {
		return err
	}
	if err := validateAll[graph.TailscaleNetwork]("tailscale_network", p.TailscaleNetworks); err != nil {
		return err
	}
	if err := validateAll[graph.UnifiDevice]("unifi_device", p.UnifiDevices); err != nil {
		return err
	}
	if err := validateAll[graph.UnifiClient]("unifi_client", p.UnifiClients); err != nil {
		return err
	}
	if err := validateAll[graph.DeviceNetworkMembership]("device_network_membership", p.DeviceNetworkRels); err != nil {
		return err
	}
	if err := validateAll[graph.Email]("email", p.Emails); err != nil {
		return err
	}
	if err := validateAll[graph.Thread]("thread", p.Threads); err != nil {
		return err
	}
	if err := validateAll[graph.Attachment]("attachment", p.Attachments); err != nil {
		return err
	}
	if err := validateAll[graph.EmailThreadRel]("email_thread_rel", p.EmailThreadRels); err != nil {
		return err
	}
	if err := validateAll[graph.AttachmentRel]("attachment_rel", p.AttachmentRels); err != nil {
		return err
	}
	return validateAll[graph.APIKey]("api_key", p.APIKeys)
}

func (s *Service) hasGraphRecords(p *reader.Payload) bool {
	return len(p.ComposeFiles)+len(p.ComposeServices)+len(p.PortBindings)+
		len(p.ServiceDependencies)+len(p.TailscaleDevices)+len(p.TailscaleNetworks)+
		len(p.UnifiDevices)+len(p.UnifiClients)+len(p.DeviceNetworkRels)+
		len(p.Emails)+len(p.Threads)+len(p.Attachments)+
		len(p.EmailThreadRels)+len(p.AttachmentRels)+len(p.APIKeys) > 0
}

func (s *Service) writeGraph(ctx context.Context, p *reader.Payload, res *Result) error {
	type write struct {
		family string
		edge   bool
		run    func() (graph.WriteResult, error)
	}
	writes := []write{
		{"compose_file", false, func() (graph.WriteResult, error) { return s.writer.WriteComposeFiles(ctx, p.ComposeFiles) }},
		{"compose_service", false, func() (graph.WriteResult, error) { return s.writer.WriteComposeServices(ctx, p.ComposeServices) }},
		{"port_binding", false, func() (graph.WriteResult, error) { return s.writer.WritePortBindings(ctx, p.PortBindings) }},
		{"tailscale_device", false, func() (graph.WriteResult, error) { return s.writer.WriteTailscaleDevices(ctx, p.TailscaleDevices) }},
		{"tailscale_network", false, func() (graph.WriteResult, error) { return s.writer.WriteTailscaleNetworks(ctx, p.TailscaleNetworks) }},
		{"unifi_device", false, func() (graph.WriteResult, error) { return s.writer.WriteUnifiDevices(ctx, p.UnifiDevices) }},
		{"unifi_client", false, func() (graph.WriteResult, error) { return s.writer.WriteUnifiClients(ctx, p.UnifiClients) }},
		{"email", false, func() (graph.WriteResult, error) { return s.writer.WriteEmails(ctx, p.Emails) }},
		{"thread", false, func() (graph.WriteResult, error) { return s.writer.WriteThreads(ctx, p.Threads) }},
		{"attachment", false, func() (graph.WriteResult, error) { return s.writer.WriteAttachments(ctx, p.Attachments) }},
		{"api_key", false, func() (graph.WriteResult, error) { return s.writer.WriteAPIKeys(ctx, p.APIKeys) }},
		{"depends_on", true, func() (graph.WriteResult, error) { return s.writer.WriteServiceDependencies(ctx, p.ServiceDependencies) }},
		{"member_of", true, func() (graph.WriteResult, error) { return s.writer.WriteDeviceNetworkRels(ctx, p.DeviceNetworkRels) }},
		{"in_thread", true, func() (graph.WriteResult, error) { return s.writer.WriteEmailThreadRels(ctx, p.EmailThreadRels) }},
		{"attached_to", true, func() (graph.WriteResult, error) { return s.writer.WriteAttachmentRels(ctx, p.AttachmentRels) }},
	}
	for _, wr := range writes {
		out, err := wr.run()
		if err != nil {
			return fmt.Errorf("ingest: writing %s records: %w", wr.family, err)
		}
		if out.TotalWritten == 0 && out.Skipped == 0 {
			continue
		}
		if wr.edge {
			res.Edges[wr.family] = out.TotalWritten
		} else {
			res.Nodes[wr.family] = out.TotalWritten
		}
		res.Skipped += out.Skipped
	}
	return nil
}
