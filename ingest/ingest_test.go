package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jmagar/taboot"
	"github.com/jmagar/taboot/cache"
	"github.com/jmagar/taboot/docstore"
	"github.com/jmagar/taboot/extraction"
	"github.com/jmagar/taboot/graph"
	"github.com/jmagar/taboot/reader"
)

// fakeGraph counts merged rows per query, treating every edge endpoint as
// present.
type fakeGraph struct {
	merged int
}

func (f *fakeGraph) Session(ctx context.Context) (graph.Session, error) {
	return &fakeGraphSession{g: f}, nil
}
func (f *fakeGraph) Ping(ctx context.Context) error  { return nil }
func (f *fakeGraph) Close(ctx context.Context) error { return nil }

type fakeGraphSession struct {
	g *fakeGraph
}

func (s *fakeGraphSession) ExecuteWrite(ctx context.Context, query string, params map[string]any) (int64, error) {
	rows, _ := params["rows"].([]map[string]any)
	s.g.merged += len(rows)
	return int64(len(rows)), nil
}
func (s *fakeGraphSession) Close(ctx context.Context) error { return nil }

func testMeta() (graph.Temporal, graph.Provenance) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return graph.Temporal{CreatedAt: now, UpdatedAt: now},
		graph.Provenance{ExtractionTier: graph.TierA, ExtractionMethod: "compose_yaml_parse", Confidence: 1.0, ExtractorVersion: "1.0.0"}
}

func composePayload() *reader.Payload {
	tmp, prov := testMeta()
	return &reader.Payload{
		ComposeFiles: []graph.ComposeFile{
			{FilePath: "/srv/docker-compose.yml", ServiceCount: 2, Temporal: tmp, Provenance: prov},
		},
		ComposeServices: []graph.ComposeService{
			{ComposeFilePath: "/srv/docker-compose.yml", Name: "web", Image: "nginx:1.27", Temporal: tmp, Provenance: prov},
			{ComposeFilePath: "/srv/docker-compose.yml", Name: "db", Image: "postgres:16", Temporal: tmp, Provenance: prov},
		},
		PortBindings: []graph.PortBinding{
			{ComposeFilePath: "/srv/docker-compose.yml", ServiceName: "web", HostPort: 80, ContainerPort: 80, Protocol: "tcp", Temporal: tmp, Provenance: prov},
		},
		ServiceDependencies: []graph.ServiceDependency{
			{ComposeFilePath: "/srv/docker-compose.yml", SourceService: "web", TargetService: "db", Condition: "service_started", Temporal: tmp, Provenance: prov},
		},
	}
}

func TestPersistWritesNodesAndEdges(t *testing.T) {
	fg := &fakeGraph{}
	svc := NewService(graph.NewWriter(fg), docstore.NewMemoryStore())

	res, err := svc.Persist(context.Background(), composePayload())
	if err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if res.Nodes["compose_file"] != 1 {
		t.Errorf("compose_file count = %d, want 1", res.Nodes["compose_file"])
	}
	if res.Nodes["compose_service"] != 2 {
		t.Errorf("compose_service count = %d, want 2", res.Nodes["compose_service"])
	}
	if res.Nodes["port_binding"] != 1 {
		t.Errorf("port_binding count = %d, want 1", res.Nodes["port_binding"])
	}
	if res.Edges["depends_on"] != 1 {
		t.Errorf("depends_on count = %d, want 1", res.Edges["depends_on"])
	}
	if fg.merged != 5 {
		t.Errorf("graph merged %d rows, want 5", fg.merged)
	}
}

func TestPersistValidationAbortsBeforeWrites(t *testing.T) {
	fg := &fakeGraph{}
	svc := NewService(graph.NewWriter(fg), docstore.NewMemoryStore())

	payload := composePayload()
	payload.PortBindings[0].HostPort = 99999

	_, err := svc.Persist(context.Background(), payload)
	if err == nil {
		t.Fatal("Persist accepted an out-of-range port")
	}
	if !strings.Contains(err.Error(), "port_binding") {
		t.Errorf("error does not name the failing family: %v", err)
	}
	if fg.merged != 0 {
		t.Errorf("writes happened before validation failed: %d rows", fg.merged)
	}
}

func TestPersistGraphRecordsRequireGraphStore(t *testing.T) {
	svc := NewService(nil, docstore.NewMemoryStore())
	_, err := svc.Persist(context.Background(), composePayload())
	if err == nil {
		t.Fatal("Persist accepted graph records without a graph store")
	}
	if !errors.Is(err, taboot.ErrGraphUnavailable) {
		t.Errorf("err = %v, want ErrGraphUnavailable", err)
	}
}

func TestPersistDedupsReingestedContent(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"notes.md":  "api-service depends on postgres.",
		"hosts.txt": "gateway is 10.0.0.1",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}

	docs := docstore.NewMemoryStore()
	svc := NewService(nil, docs)

	// Each read mints fresh document ids; the hash dedup must collapse the
	// second run onto the first run's ids.
	for run := 0; run < 2; run++ {
		res, err := svc.Run(context.Background(), reader.NewFileReader(dir))
		if err != nil {
			t.Fatalf("run %d failed: %v", run, err)
		}
		if res.Documents != 2 {
			t.Errorf("run %d persisted %d documents, want 2", run, res.Documents)
		}
	}

	pending, err := docs.QueryPending(context.Background(), 0)
	if err != nil {
		t.Fatalf("QueryPending: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("store holds %d documents after re-ingest, want 2", len(pending))
	}
}

func TestPersistStoresAndEnqueuesDocuments(t *testing.T) {
	store, err := cache.NewInMemory()
	if err != nil {
		t.Fatalf("opening cache: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	docs := docstore.NewMemoryStore()
	svc := NewService(nil, docs, WithQueue(store))

	id := uuid.New()
	payload := &reader.Payload{Documents: []docstore.Document{{
		DocID:           id,
		SourceURL:       "file:///docs/notes.md",
		SourceType:      docstore.SourceFile,
		Content:         "api-service depends on postgres",
		IngestedAt:      time.Now().UTC(),
		ExtractionState: extraction.StatePending,
	}}}

	res, err := svc.Persist(context.Background(), payload)
	if err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if res.Documents != 1 {
		t.Errorf("documents = %d, want 1", res.Documents)
	}
	if _, err := docs.GetDocument(context.Background(), id); err != nil {
		t.Errorf("document not stored: %v", err)
	}
	depth, err := store.QueueDepth(cache.QueueExtraction)
	if err != nil {
		t.Fatalf("QueueDepth: %v", err)
	}
	if depth != 1 {
		t.Errorf("queue depth = %d, want 1", depth)
	}
	items, err := store.PeekQueue(cache.QueueExtraction, 1)
	if err != nil {
		t.Fatalf("PeekQueue: %v", err)
	}
	want := `{"doc_id":"` + id.String() + `"}`
	if string(items[0]) != want {
		t.Errorf("envelope = %s, want %s", items[0], want)
	}
}

func TestRunDrivesReaderEndToEnd(t *testing.T) {
	dir := t.TempDir()
	composeYAML := `
services:
  web:
    image: nginx:1.27
    ports:
      - "8080:80"
    depends_on:
      - db
  db:
    image: postgres:16
`
	path := filepath.Join(dir, "docker-compose.yml")
	if err := os.WriteFile(path, []byte(composeYAML), 0644); err != nil {
		t.Fatalf("writing compose file: %v", err)
	}

	fg := &fakeGraph{}
	svc := NewService(graph.NewWriter(fg), docstore.NewMemoryStore())
	res, err := svc.Run(context.Background(), reader.NewComposeReader(path, "1.0.0"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Nodes["compose_service"] != 2 {
		t.Errorf("compose_service count = %d, want 2", res.Nodes["compose_service"])
	}
	if res.Edges["depends_on"] != 1 {
		t.Errorf("depends_on count = %d, want 1", res.Edges["depends_on"])
	}
}
