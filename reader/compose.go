package reader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jmagar/taboot/graph"
)

// ComposeReader parses one Docker Compose file into compose-family records.
type ComposeReader struct {
	Path             string
	ExtractorVersion string
}

// NewComposeReader creates a reader for the compose file at path.
func NewComposeReader(path, extractorVersion string) *ComposeReader {
	return &ComposeReader{Path: path, ExtractorVersion: extractorVersion}
}

// composeDoc mirrors the subset of the compose schema we extract.
type composeDoc struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Image         string            `yaml:"image"`
	ContainerName string            `yaml:"container_name"`
	Restart       string            `yaml:"restart"`
	Ports         []string          `yaml:"ports"`
	Environment   map[string]string `yaml:"environment"`
	DependsOn     yaml.Node         `yaml:"depends_on"`
}

func (r *ComposeReader) Read(ctx context.Context) (*Payload, error) {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileMissing, r.Path)
		}
		return nil, fmt.Errorf("reader: reading %s: %w", r.Path, err)
	}

	var doc composeDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedYAML, r.Path, err)
	}
	if len(doc.Services) == 0 {
		return nil, fmt.Errorf("%w: %s: no services", ErrMalformedYAML, r.Path)
	}

	meta := graph.NewTemporal()
	prov := graph.Provenance{
		ExtractionTier:   graph.TierA,
		ExtractionMethod: "compose_yaml_parse",
		Confidence:       1.0,
		ExtractorVersion: r.ExtractorVersion,
	}
	hash := sha256.Sum256(data)

	payload := &Payload{
		ComposeFiles: []graph.ComposeFile{{
			FilePath:     r.Path,
			ContentHash:  hex.EncodeToString(hash[:]),
			ServiceCount: len(doc.Services),
			Temporal:     meta,
			Provenance:   prov,
		}},
	}

	for name, svc := range doc.Services {
		payload.ComposeServices = append(payload.ComposeServices, graph.ComposeService{
			ComposeFilePath: r.Path,
			Name:            name,
			Image:           svc.Image,
			ContainerName:   svc.ContainerName,
			Restart:         svc.Restart,
			Environment:     svc.Environment,
			Temporal:        meta,
			Provenance:      prov,
		})

		for _, spec := range svc.Ports {
			binding, exposureOnly, err := parsePortMapping(spec)
			if err != nil {
				return nil, fmt.Errorf("%w: service %s: %v", ErrInvalidPort, name, err)
			}
			if exposureOnly {
				continue
			}
			binding.ComposeFilePath = r.Path
			binding.ServiceName = name
			binding.Temporal = meta
			binding.Provenance = prov
			payload.PortBindings = append(payload.PortBindings, *binding)
		}

		deps, err := parseDependsOn(svc.DependsOn)
		if err != nil {
			return nil, fmt.Errorf("%w: service %s: depends_on: %v", ErrMalformedYAML, name, err)
		}
		for _, dep := range deps {
			if _, ok := doc.Services[dep.target]; !ok {
				return nil, fmt.Errorf("%w: service %s depends on unknown service %s",
					ErrMalformedYAML, name, dep.target)
			}
			payload.ServiceDependencies = append(payload.ServiceDependencies, graph.ServiceDependency{
				ComposeFilePath: r.Path,
				SourceService:   name,
				TargetService:   dep.target,
				Condition:       dep.condition,
				Temporal:        meta,
				Provenance:      prov,
			})
		}
	}
	return payload, nil
}

// parsePortMapping parses the compose short port syntax
// [host_ip:]host_port:container_port[/protocol]. A bare container port (no
// host part) is an exposure, not a binding.
func parsePortMapping(spec string) (*graph.PortBinding, bool, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, false, fmt.Errorf("empty port mapping")
	}

	proto := "tcp"
	if idx := strings.LastIndex(spec, "/"); idx >= 0 {
		proto = strings.ToLower(spec[idx+1:])
		spec = spec[:idx]
		if proto != "tcp" && proto != "udp" {
			return nil, false, fmt.Errorf("unsupported protocol %q", proto)
		}
	}

	parts := strings.Split(spec, ":")
	var hostIP string
	var hostPart, containerPart string
	switch len(parts) {
	case 1:
		// Container-only exposure; validate the port and skip.
		if _, err := parsePort(parts[0]); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	case 2:
		hostPart, containerPart = parts[0], parts[1]
	case 3:
		hostIP, hostPart, containerPart = parts[0], parts[1], parts[2]
		if net.ParseIP(hostIP) == nil {
			return nil, false, fmt.Errorf("invalid host ip %q", hostIP)
		}
	default:
		return nil, false, fmt.Errorf("malformed port mapping %q", spec)
	}

	if strings.Contains(hostPart, "-") || strings.Contains(containerPart, "-") {
		return nil, false, fmt.Errorf("port ranges are not supported: %q", spec)
	}

	hostPort, err := parsePort(hostPart)
	if err != nil {
		return nil, false, err
	}
	containerPort, err := parsePort(containerPart)
	if err != nil {
		return nil, false, err
	}

	return &graph.PortBinding{
		HostIP:        hostIP,
		HostPort:      hostPort,
		ContainerPort: containerPort,
		Protocol:      proto,
	}, false, nil
}

func parsePort(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("port %q is not a number", s)
	}
	if n < 1 || n > 65535 {
		return 0, fmt.Errorf("port %d out of range [1, 65535]", n)
	}
	return n, nil
}

type dependency struct {
	target    string
	condition string
}

// parseDependsOn accepts both compose forms: a plain list of service names
// and a map of name to {condition}.
func parseDependsOn(node yaml.Node) ([]dependency, error) {
	switch node.Kind {
	case 0: // absent
		return nil, nil
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return nil, err
		}
		deps := make([]dependency, len(names))
		for i, n := range names {
			deps[i] = dependency{target: n, condition: "service_started"}
		}
		return deps, nil
	case yaml.MappingNode:
		var m map[string]struct {
			Condition string `yaml:"condition"`
		}
		if err := node.Decode(&m); err != nil {
			return nil, err
		}
		var deps []dependency
		for name, spec := range m {
			cond := spec.Condition
			if cond == "" {
				cond = "service_started"
			}
			deps = append(deps, dependency{target: name, condition: cond})
		}
		return deps, nil
	default:
		return nil, fmt.Errorf("unsupported depends_on node kind %d", node.Kind)
	}
}
