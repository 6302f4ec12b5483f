// Package reader turns external sources into typed records for ingestion.
// Every reader emits a Payload: an explicit struct of optional typed slices,
// validated once at the ingest boundary.
package reader

import (
	"context"
	"errors"

	"github.com/jmagar/taboot/docstore"
	"github.com/jmagar/taboot/graph"
)

// Sentinel errors raised by readers. The use case maps them to user messages
// and exit codes.
var (
	ErrFileMissing   = errors.New("reader: file not found")
	ErrMalformedYAML = errors.New("reader: malformed yaml")
	ErrInvalidPort   = errors.New("reader: invalid port")
	ErrUnauthorized  = errors.New("reader: api unauthorized")
	ErrRateLimited   = errors.New("reader: api rate limited")
	ErrNetwork       = errors.New("reader: network failure")
)

// Payload is the typed output of a reader. Slices are nil when the source
// does not produce that family.
type Payload struct {
	ComposeFiles        []graph.ComposeFile
	ComposeServices     []graph.ComposeService
	PortBindings        []graph.PortBinding
	ServiceDependencies []graph.ServiceDependency

	TailscaleDevices  []graph.TailscaleDevice
	TailscaleNetworks []graph.TailscaleNetwork
	UnifiDevices      []graph.UnifiDevice
	UnifiClients      []graph.UnifiClient
	DeviceNetworkRels []graph.DeviceNetworkMembership

	Emails          []graph.Email
	Threads         []graph.Thread
	Attachments     []graph.Attachment
	EmailThreadRels []graph.EmailThreadRel
	AttachmentRels  []graph.AttachmentRel

	APIKeys []graph.APIKey

	// Documents are extractable content destined for the document store and
	// the Tier A/B/C pipeline, not the graph writer.
	Documents []docstore.Document
}

// Reader loads data from one source.
type Reader interface {
	Read(ctx context.Context) (*Payload, error)
}
