// Package graph holds the typed entity records of the knowledge graph and
// the batched writer that persists them. Records validate at the ingest
// boundary; the writer issues idempotent parameterised MERGE upserts against
// the property-graph store.
package graph

import (
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Tier identifies which extraction stage produced a record.
type Tier string

const (
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
)

// macRe is the accepted MAC address shape: six hex octet pairs separated by
// ':' or '-'. Stored lowercased.
var macRe = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}$`)

// hex64Re matches a sha-256 digest in hex. Stored lowercased.
var hex64Re = regexp.MustCompile(`^[0-9A-Fa-f]{64}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Registration only fails for blank tags or nil funcs.
	_ = v.RegisterValidation("macaddr", func(fl validator.FieldLevel) bool {
		return macRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("hex64", func(fl validator.FieldLevel) bool {
		return hex64Re.MatchString(fl.Field().String())
	})
	return v
}

// Provenance is carried by every record: which tier produced it, how, with
// what confidence, and under which extractor version.
type Provenance struct {
	ExtractionTier   Tier    `json:"extraction_tier" validate:"required,oneof=A B C"`
	ExtractionMethod string  `json:"extraction_method"`
	Confidence       float64 `json:"confidence" validate:"gte=0,lte=1"`
	ExtractorVersion string  `json:"extractor_version" validate:"required"`
}

// Temporal is carried by every record. SourceTimestamp is the time the
// underlying fact was observed at the source, when known.
type Temporal struct {
	CreatedAt       time.Time  `json:"created_at" validate:"required"`
	UpdatedAt       time.Time  `json:"updated_at" validate:"required,gtefield=CreatedAt"`
	SourceTimestamp *time.Time `json:"source_timestamp,omitempty"`
}

// NewTemporal stamps a record created and updated now (UTC).
func NewTemporal() Temporal {
	now := time.Now().UTC()
	return Temporal{CreatedAt: now, UpdatedAt: now}
}

// ---------------------------------------------------------------------------
// Compose family
// ---------------------------------------------------------------------------

// ComposeFile is one parsed Docker Compose file. Natural key: file_path.
type ComposeFile struct {
	FilePath     string `json:"file_path" validate:"required"`
	ContentHash  string `json:"content_hash" validate:"omitempty,hex64"`
	ServiceCount int    `json:"service_count" validate:"gte=0"`
	Temporal
	Provenance
}

func (r *ComposeFile) Normalize() { r.ContentHash = strings.ToLower(r.ContentHash) }

func (r *ComposeFile) Validate() error { return validate.Struct(r) }

// ComposeService is one service in a compose file. Natural key:
// (compose_file_path, name).
type ComposeService struct {
	ComposeFilePath string            `json:"compose_file_path" validate:"required"`
	Name            string            `json:"name" validate:"required"`
	Image           string            `json:"image"`
	ContainerName   string            `json:"container_name"`
	Restart         string            `json:"restart"`
	Environment     map[string]string `json:"environment,omitempty"`
	Temporal
	Provenance
}

func (r *ComposeService) Normalize() {}

func (r *ComposeService) Validate() error { return validate.Struct(r) }

// PortBinding is one published port of a compose service. Natural key: the
// full binding tuple.
type PortBinding struct {
	ComposeFilePath string `json:"compose_file_path" validate:"required"`
	ServiceName     string `json:"service_name" validate:"required"`
	HostIP          string `json:"host_ip" validate:"omitempty,ip"`
	HostPort        int    `json:"host_port" validate:"min=1,max=65535"`
	ContainerPort   int    `json:"container_port" validate:"min=1,max=65535"`
	Protocol        string `json:"protocol" validate:"required,oneof=tcp udp"`
	Temporal
	Provenance
}

func (r *PortBinding) Normalize() {
	if r.Protocol == "" {
		r.Protocol = "tcp"
	}
	r.Protocol = strings.ToLower(r.Protocol)
}

func (r *PortBinding) Validate() error { return validate.Struct(r) }

// ServiceDependency is a depends_on edge between two services of the same
// compose file. Natural key: (compose_file_path, source_service,
// target_service).
type ServiceDependency struct {
	ComposeFilePath string `json:"compose_file_path" validate:"required"`
	SourceService   string `json:"source_service" validate:"required"`
	TargetService   string `json:"target_service" validate:"required"`
	Condition       string `json:"condition"`
	Temporal
	Provenance
}

func (r *ServiceDependency) Normalize() {}

func (r *ServiceDependency) Validate() error { return validate.Struct(r) }

// ---------------------------------------------------------------------------
// Network family
// ---------------------------------------------------------------------------

// TailscaleDevice is one device on a tailnet. Natural key: device_id.
type TailscaleDevice struct {
	DeviceID  string     `json:"device_id" validate:"required"`
	NetworkID string     `json:"network_id"`
	Hostname  string     `json:"hostname"`
	Name      string     `json:"name"`
	Addresses []string   `json:"addresses,omitempty"`
	OS        string     `json:"os"`
	User      string     `json:"user"`
	Online    bool       `json:"online"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	Temporal
	Provenance
}

func (r *TailscaleDevice) Normalize() {}

func (r *TailscaleDevice) Validate() error { return validate.Struct(r) }

// TailscaleNetwork is one tailnet. Natural key: network_id.
type TailscaleNetwork struct {
	NetworkID string `json:"network_id" validate:"required"`
	Name      string `json:"name"`
	Temporal
	Provenance
}

func (r *TailscaleNetwork) Normalize() {}

func (r *TailscaleNetwork) Validate() error { return validate.Struct(r) }

// UnifiDevice is one UniFi network device (AP, switch, gateway). Natural
// key: mac.
type UnifiDevice struct {
	MAC   string `json:"mac" validate:"required,macaddr"`
	Name  string `json:"name"`
	Model string `json:"model"`
	IP    string `json:"ip" validate:"omitempty,ip"`
	Temporal
	Provenance
}

func (r *UnifiDevice) Normalize() { r.MAC = strings.ToLower(r.MAC) }

func (r *UnifiDevice) Validate() error { return validate.Struct(r) }

// UnifiClient is one client seen by a UniFi controller. Natural key: mac.
type UnifiClient struct {
	MAC      string `json:"mac" validate:"required,macaddr"`
	Hostname string `json:"hostname"`
	IP       string `json:"ip" validate:"omitempty,ip"`
	Network  string `json:"network"`
	Wired    bool   `json:"wired"`
	Temporal
	Provenance
}

func (r *UnifiClient) Normalize() { r.MAC = strings.ToLower(r.MAC) }

func (r *UnifiClient) Validate() error { return validate.Struct(r) }

// DeviceNetworkMembership is a MEMBER_OF edge from a TailscaleDevice to its
// TailscaleNetwork. Natural key: (device_id, network_id).
type DeviceNetworkMembership struct {
	DeviceID  string `json:"device_id" validate:"required"`
	NetworkID string `json:"network_id" validate:"required"`
	Temporal
	Provenance
}

func (r *DeviceNetworkMembership) Normalize() {}

func (r *DeviceNetworkMembership) Validate() error { return validate.Struct(r) }

// ---------------------------------------------------------------------------
// Mail family
// ---------------------------------------------------------------------------

// Email is one mail message. Natural key: message_id.
type Email struct {
	MessageID string     `json:"message_id" validate:"required"`
	ThreadID  string     `json:"thread_id"`
	Subject   string     `json:"subject"`
	From      string     `json:"from"`
	To        []string   `json:"to,omitempty"`
	Date      *time.Time `json:"date,omitempty"`
	Temporal
	Provenance
}

func (r *Email) Normalize() {}

func (r *Email) Validate() error { return validate.Struct(r) }

// Thread is one mail conversation. Natural key: thread_id.
type Thread struct {
	ThreadID     string `json:"thread_id" validate:"required"`
	Subject      string `json:"subject"`
	MessageCount int    `json:"message_count" validate:"gte=0"`
	Temporal
	Provenance
}

func (r *Thread) Normalize() {}

func (r *Thread) Validate() error { return validate.Struct(r) }

// Attachment is one mail attachment. Natural key: attachment_id.
type Attachment struct {
	AttachmentID string `json:"attachment_id" validate:"required"`
	MessageID    string `json:"message_id" validate:"required"`
	Filename     string `json:"filename"`
	MimeType     string `json:"mime_type"`
	SizeBytes    int64  `json:"size_bytes" validate:"gte=0"`
	Temporal
	Provenance
}

func (r *Attachment) Normalize() {}

func (r *Attachment) Validate() error { return validate.Struct(r) }

// EmailThreadRel is an IN_THREAD edge from an Email to its Thread. Natural
// key: (message_id, thread_id).
type EmailThreadRel struct {
	MessageID string `json:"message_id" validate:"required"`
	ThreadID  string `json:"thread_id" validate:"required"`
	Temporal
	Provenance
}

func (r *EmailThreadRel) Normalize() {}

func (r *EmailThreadRel) Validate() error { return validate.Struct(r) }

// AttachmentRel is an ATTACHED_TO edge from an Attachment to its Email.
// Natural key: (attachment_id, message_id).
type AttachmentRel struct {
	AttachmentID string `json:"attachment_id" validate:"required"`
	MessageID    string `json:"message_id" validate:"required"`
	Temporal
	Provenance
}

func (r *AttachmentRel) Normalize() {}

func (r *AttachmentRel) Validate() error { return validate.Struct(r) }

// ---------------------------------------------------------------------------
// Auth family
// ---------------------------------------------------------------------------

// APIKey is one API key record. Natural key: key_hash (sha-256 hex).
type APIKey struct {
	KeyHash  string     `json:"key_hash" validate:"required,hex64"`
	Name     string     `json:"name"`
	IsActive bool       `json:"is_active"`
	Expires  *time.Time `json:"expires,omitempty"`
	Temporal
	Provenance
}

func (r *APIKey) Normalize() { r.KeyHash = strings.ToLower(r.KeyHash) }

func (r *APIKey) Validate() error { return validate.Struct(r) }
