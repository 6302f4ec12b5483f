package reader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const scenarioCompose = `
services:
  web:
    image: nginx:1.27
    ports:
      - "80:80"
      - "443:443"
    depends_on:
      - api
      - cache
  api:
    image: acme/api:2.1
    ports:
      - "8080:8080"
    depends_on:
      db:
        condition: service_healthy
  db:
    image: postgres:16
    ports:
      - "5432:5432"
  cache:
    image: redis:7
    ports:
      - "6379:6379"
`

func writeCompose(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docker-compose.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing compose file: %v", err)
	}
	return path
}

func TestComposeReaderScenario(t *testing.T) {
	path := writeCompose(t, scenarioCompose)
	r := NewComposeReader(path, "1.0.0")

	payload, err := r.Read(context.Background())
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if len(payload.ComposeFiles) != 1 {
		t.Errorf("compose files = %d, want 1", len(payload.ComposeFiles))
	}
	cf := payload.ComposeFiles[0]
	if cf.ServiceCount != 4 {
		t.Errorf("service count = %d, want 4", cf.ServiceCount)
	}
	if len(cf.ContentHash) != 64 {
		t.Errorf("content hash length = %d, want 64", len(cf.ContentHash))
	}

	if len(payload.ComposeServices) != 4 {
		t.Errorf("services = %d, want 4", len(payload.ComposeServices))
	}
	if len(payload.PortBindings) != 5 {
		t.Errorf("port bindings = %d, want 5", len(payload.PortBindings))
	}
	if len(payload.ServiceDependencies) != 3 {
		t.Errorf("service dependencies = %d, want 3", len(payload.ServiceDependencies))
	}

	deps := make(map[string]string)
	for _, d := range payload.ServiceDependencies {
		deps[d.SourceService+"->"+d.TargetService] = d.Condition
	}
	for _, want := range []string{"web->api", "web->cache", "api->db"} {
		if _, ok := deps[want]; !ok {
			t.Errorf("missing dependency %s (have %v)", want, deps)
		}
	}
	if deps["api->db"] != "service_healthy" {
		t.Errorf("api->db condition = %q, want service_healthy", deps["api->db"])
	}

	for _, rec := range payload.PortBindings {
		if err := rec.Validate(); err != nil {
			t.Errorf("emitted invalid port binding %+v: %v", rec, err)
		}
	}
}

func TestComposeReaderPortOutOfRange(t *testing.T) {
	path := writeCompose(t, `
services:
  api:
    image: acme/api
    ports:
      - "99999:8080"
`)
	r := NewComposeReader(path, "1.0.0")
	if _, err := r.Read(context.Background()); !errors.Is(err, ErrInvalidPort) {
		t.Errorf("Read = %v, want ErrInvalidPort", err)
	}
}

func TestComposeReaderMissingFile(t *testing.T) {
	r := NewComposeReader(filepath.Join(t.TempDir(), "absent.yml"), "1.0.0")
	if _, err := r.Read(context.Background()); !errors.Is(err, ErrFileMissing) {
		t.Errorf("Read = %v, want ErrFileMissing", err)
	}
}

func TestComposeReaderMalformedYAML(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid yaml", "services: [unclosed"},
		{"no services", "version: '3'\n"},
		{"unknown dependency", "services:\n  a:\n    depends_on:\n      - ghost\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCompose(t, tt.content)
			r := NewComposeReader(path, "1.0.0")
			if _, err := r.Read(context.Background()); !errors.Is(err, ErrMalformedYAML) {
				t.Errorf("Read = %v, want ErrMalformedYAML", err)
			}
		})
	}
}

func TestParsePortMapping(t *testing.T) {
	tests := []struct {
		spec          string
		wantHostIP    string
		wantHost      int
		wantContainer int
		wantProto     string
		exposureOnly  bool
		wantErr       bool
	}{
		{spec: "80:80", wantHost: 80, wantContainer: 80, wantProto: "tcp"},
		{spec: "8080:80/udp", wantHost: 8080, wantContainer: 80, wantProto: "udp"},
		{spec: "127.0.0.1:5432:5432", wantHostIP: "127.0.0.1", wantHost: 5432, wantContainer: 5432, wantProto: "tcp"},
		{spec: "9090", exposureOnly: true},
		{spec: "0:80", wantErr: true},
		{spec: "99999:80", wantErr: true},
		{spec: "80:99999", wantErr: true},
		{spec: "abc:80", wantErr: true},
		{spec: "80:80/sctp", wantErr: true},
		{spec: "8000-8010:8000", wantErr: true},
		{spec: "bad-ip:80:80", wantErr: true},
		{spec: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			binding, exposure, err := parsePortMapping(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parsePortMapping(%q) accepted", tt.spec)
				}
				return
			}
			if err != nil {
				t.Fatalf("parsePortMapping(%q) failed: %v", tt.spec, err)
			}
			if exposure != tt.exposureOnly {
				t.Fatalf("exposureOnly = %v, want %v", exposure, tt.exposureOnly)
			}
			if exposure {
				return
			}
			if binding.HostIP != tt.wantHostIP || binding.HostPort != tt.wantHost ||
				binding.ContainerPort != tt.wantContainer || binding.Protocol != tt.wantProto {
				t.Errorf("parsePortMapping(%q) = %+v", tt.spec, binding)
			}
		})
	}
}
