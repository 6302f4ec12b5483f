package graph

import (
	"encoding/json"
	"time"
)

// Row serialisation. Datetimes become RFC 3339 strings; nested maps become
// JSON-encoded strings because the graph store cannot hold map properties;
// string lists stay native.

func isoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func isoTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return isoTime(*t)
}

func jsonMap(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func (t Temporal) fill(m map[string]any) {
	m["created_at"] = isoTime(t.CreatedAt)
	m["updated_at"] = isoTime(t.UpdatedAt)
	m["source_timestamp"] = isoTimePtr(t.SourceTimestamp)
}

func (p Provenance) fill(m map[string]any) {
	m["extraction_tier"] = string(p.ExtractionTier)
	m["extraction_method"] = p.ExtractionMethod
	m["confidence"] = p.Confidence
	m["extractor_version"] = p.ExtractorVersion
}

func metaRow(t Temporal, p Provenance, fields map[string]any) map[string]any {
	t.fill(fields)
	p.fill(fields)
	return fields
}

func (r *ComposeFile) row() map[string]any {
	return metaRow(r.Temporal, r.Provenance, map[string]any{
		"file_path":     r.FilePath,
		"content_hash":  r.ContentHash,
		"service_count": r.ServiceCount,
	})
}

func (r *ComposeService) row() map[string]any {
	return metaRow(r.Temporal, r.Provenance, map[string]any{
		"compose_file_path": r.ComposeFilePath,
		"name":              r.Name,
		"image":             r.Image,
		"container_name":    r.ContainerName,
		"restart":           r.Restart,
		"environment":       jsonMap(r.Environment),
	})
}

func (r *PortBinding) row() map[string]any {
	return metaRow(r.Temporal, r.Provenance, map[string]any{
		"compose_file_path": r.ComposeFilePath,
		"service_name":      r.ServiceName,
		"host_ip":           r.HostIP,
		"host_port":         r.HostPort,
		"container_port":    r.ContainerPort,
		"protocol":          r.Protocol,
	})
}

func (r *ServiceDependency) row() map[string]any {
	return metaRow(r.Temporal, r.Provenance, map[string]any{
		"compose_file_path": r.ComposeFilePath,
		"source_service":    r.SourceService,
		"target_service":    r.TargetService,
		"condition":         r.Condition,
	})
}

func (r *TailscaleDevice) row() map[string]any {
	return metaRow(r.Temporal, r.Provenance, map[string]any{
		"device_id":  r.DeviceID,
		"network_id": r.NetworkID,
		"hostname":   r.Hostname,
		"name":       r.Name,
		"addresses":  r.Addresses,
		"os":         r.OS,
		"user":       r.User,
		"online":     r.Online,
		"last_seen":  isoTimePtr(r.LastSeen),
	})
}

func (r *TailscaleNetwork) row() map[string]any {
	return metaRow(r.Temporal, r.Provenance, map[string]any{
		"network_id": r.NetworkID,
		"name":       r.Name,
	})
}

func (r *UnifiDevice) row() map[string]any {
	return metaRow(r.Temporal, r.Provenance, map[string]any{
		"mac":   r.MAC,
		"name":  r.Name,
		"model": r.Model,
		"ip":    r.IP,
	})
}

func (r *UnifiClient) row() map[string]any {
	return metaRow(r.Temporal, r.Provenance, map[string]any{
		"mac":      r.MAC,
		"hostname": r.Hostname,
		"ip":       r.IP,
		"network":  r.Network,
		"wired":    r.Wired,
	})
}

func (r *DeviceNetworkMembership) row() map[string]any {
	return metaRow(r.Temporal, r.Provenance, map[string]any{
		"device_id":  r.DeviceID,
		"network_id": r.NetworkID,
	})
}

func (r *Email) row() map[string]any {
	return metaRow(r.Temporal, r.Provenance, map[string]any{
		"message_id": r.MessageID,
		"thread_id":  r.ThreadID,
		"subject":    r.Subject,
		"from":       r.From,
		"to":         r.To,
		"date":       isoTimePtr(r.Date),
	})
}

func (r *Thread) row() map[string]any {
	return metaRow(r.Temporal, r.Provenance, map[string]any{
		"thread_id":     r.ThreadID,
		"subject":       r.Subject,
		"message_count": r.MessageCount,
	})
}

func (r *Attachment) row() map[string]any {
	return metaRow(r.Temporal, r.Provenance, map[string]any{
		"attachment_id": r.AttachmentID,
		"message_id":    r.MessageID,
		"filename":      r.Filename,
		"mime_type":     r.MimeType,
		"size_bytes":    r.SizeBytes,
	})
}

func (r *EmailThreadRel) row() map[string]any {
	return metaRow(r.Temporal, r.Provenance, map[string]any{
		"message_id": r.MessageID,
		"thread_id":  r.ThreadID,
	})
}

func (r *AttachmentRel) row() map[string]any {
	return metaRow(r.Temporal, r.Provenance, map[string]any{
		"attachment_id": r.AttachmentID,
		"message_id":    r.MessageID,
	})
}

func (r *APIKey) row() map[string]any {
	return metaRow(r.Temporal, r.Provenance, map[string]any{
		"key_hash":  r.KeyHash,
		"name":      r.Name,
		"is_active": r.IsActive,
		"expires":   isoTimePtr(r.Expires),
	})
}
