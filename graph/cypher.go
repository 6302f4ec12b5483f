package graph

import (
	"fmt"
	"strings"
)

// nodeSpec statically defines one node family: its label, the natural-key
// fields used as MERGE criteria, and the property fields overwritten on every
// write. Labels and field names never come from data, so every query below is
// fully parameterised.
type nodeSpec struct {
	Label string
	Keys  []string
	Props []string
}

// keyRef maps an endpoint-node key field to the row field carrying its value.
type keyRef struct {
	Node string
	Row  string
}

// edgeSpec statically defines one relationship family: its type, the labels
// and key bindings of both endpoints, and the relationship properties.
type edgeSpec struct {
	Type     string
	SrcLabel string
	SrcKeys  []keyRef
	DstLabel string
	DstKeys  []keyRef
	Props    []string
}

// metaProps are the temporal and provenance properties carried by every
// record.
var metaProps = []string{
	"created_at", "updated_at", "source_timestamp",
	"extraction_tier", "extraction_method", "confidence", "extractor_version",
}

func withMeta(props ...string) []string {
	return append(props, metaProps...)
}

// query renders the batched node upsert:
//
//	UNWIND $rows AS row
//	MERGE (n:Label {key: row.key, ...})
//	SET n.prop = row.prop, ...
//	RETURN count(n)
func (s nodeSpec) query() string {
	var b strings.Builder
	b.WriteString("UNWIND $rows AS row\n")
	fmt.Fprintf(&b, "MERGE (n:%s {%s})\n", s.Label, keyPattern(s.Keys))
	if len(s.Props) > 0 {
		b.WriteString("SET ")
		for i, p := range s.Props {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "n.%s = row.%s", p, p)
		}
		b.WriteString("\n")
	}
	b.WriteString("RETURN count(n)")
	return b.String()
}

// query renders the batched relationship upsert. Both endpoints are matched
// optionally; rows with a missing endpoint are filtered out before the MERGE
// and surface as a shortfall in the returned count.
func (s edgeSpec) query() string {
	var b strings.Builder
	b.WriteString("UNWIND $rows AS row\n")
	fmt.Fprintf(&b, "OPTIONAL MATCH (src:%s {%s})\n", s.SrcLabel, refPattern(s.SrcKeys))
	fmt.Fprintf(&b, "OPTIONAL MATCH (dst:%s {%s})\n", s.DstLabel, refPattern(s.DstKeys))
	b.WriteString("WITH row, src, dst WHERE src IS NOT NULL AND dst IS NOT NULL\n")
	fmt.Fprintf(&b, "MERGE (src)-[r:%s]->(dst)\n", s.Type)
	if len(s.Props) > 0 {
		b.WriteString("SET ")
		for i, p := range s.Props {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "r.%s = row.%s", p, p)
		}
		b.WriteString("\n")
	}
	b.WriteString("RETURN count(r)")
	return b.String()
}

func keyPattern(keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: row.%s", k, k)
	}
	return strings.Join(parts, ", ")
}

func refPattern(refs []keyRef) string {
	parts := make([]string, len(refs))
	for i, r := range refs {
		parts[i] = fmt.Sprintf("%s: row.%s", r.Node, r.Row)
	}
	return strings.Join(parts, ", ")
}

// Static family definitions. One per §3 entity, natural keys as MERGE
// criteria, everything else overwritten per write.
var (
	composeFileSpec = nodeSpec{
		Label: "ComposeFile",
		Keys:  []string{"file_path"},
		Props: withMeta("content_hash", "service_count"),
	}
	composeServiceSpec = nodeSpec{
		Label: "ComposeService",
		Keys:  []string{"compose_file_path", "name"},
		Props: withMeta("image", "container_name", "restart", "environment"),
	}
	portBindingSpec = nodeSpec{
		Label: "PortBinding",
		Keys: []string{
			"compose_file_path", "service_name",
			"host_ip", "host_port", "container_port", "protocol",
		},
		Props: withMeta(),
	}
	tailscaleDeviceSpec = nodeSpec{
		Label: "TailscaleDevice",
		Keys:  []string{"device_id"},
		Props: withMeta("network_id", "hostname", "name", "addresses", "os", "user", "online", "last_seen"),
	}
	tailscaleNetworkSpec = nodeSpec{
		Label: "TailscaleNetwork",
		Keys:  []string{"network_id"},
		Props: withMeta("name"),
	}
	unifiDeviceSpec = nodeSpec{
		Label: "UnifiDevice",
		Keys:  []string{"mac"},
		Props: withMeta("name", "model", "ip"),
	}
	unifiClientSpec = nodeSpec{
		Label: "UnifiClient",
		Keys:  []string{"mac"},
		Props: withMeta("hostname", "ip", "network", "wired"),
	}
	emailSpec = nodeSpec{
		Label: "Email",
		Keys:  []string{"message_id"},
		Props: withMeta("thread_id", "subject", "from", "to", "date"),
	}
	threadSpec = nodeSpec{
		Label: "Thread",
		Keys:  []string{"thread_id"},
		Props: withMeta("subject", "message_count"),
	}
	attachmentSpec = nodeSpec{
		Label: "Attachment",
		Keys:  []string{"attachment_id"},
		Props: withMeta("message_id", "filename", "mime_type", "size_bytes"),
	}
	apiKeySpec = nodeSpec{
		Label: "ApiKey",
		Keys:  []string{"key_hash"},
		Props: withMeta("name", "is_active", "expires"),
	}

	serviceDependencySpec = edgeSpec{
		Type:     "DEPENDS_ON",
		SrcLabel: "ComposeService",
		SrcKeys: []keyRef{
			{Node: "compose_file_path", Row: "compose_file_path"},
			{Node: "name", Row: "source_service"},
		},
		DstLabel: "ComposeService",
		DstKeys: []keyRef{
			{Node: "compose_file_path", Row: "compose_file_path"},
			{Node: "name", Row: "target_service"},
		},
		Props: withMeta("condition"),
	}
	emailThreadRelSpec = edgeSpec{
		Type:     "IN_THREAD",
		SrcLabel: "Email",
		SrcKeys:  []keyRef{{Node: "message_id", Row: "message_id"}},
		DstLabel: "Thread",
		DstKeys:  []keyRef{{Node: "thread_id", Row: "thread_id"}},
		Props:    withMeta(),
	}
	attachmentRelSpec = edgeSpec{
		Type:     "ATTACHED_TO",
		SrcLabel: "Attachment",
		SrcKeys:  []keyRef{{Node: "attachment_id", Row: "attachment_id"}},
		DstLabel: "Email",
		DstKeys:  []keyRef{{Node: "message_id", Row: "message_id"}},
		Props:    withMeta(),
	}
	deviceNetworkRelSpec = edgeSpec{
		Type:     "MEMBER_OF",
		SrcLabel: "TailscaleDevice",
		SrcKeys:  []keyRef{{Node: "device_id", Row: "device_id"}},
		DstLabel: "TailscaleNetwork",
		DstKeys:  []keyRef{{Node: "network_id", Row: "network_id"}},
		Props:    withMeta(),
	}
)
