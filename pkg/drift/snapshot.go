package drift

import (
	"fmt"
	"io"
	"os"

	"github.com/opencontainers/go-digest"
	"gopkg.in/yaml.v3"

	"github.com/mattbaird/ontology-sub000/internal/schema"
	"github.com/mattbaird/ontology-sub000/pkg/resolver"
)

// SnapshotVersion is the snapshot format written by Take
const SnapshotVersion = 1

// Snapshot records a graph well enough to check drift against it later
// without the original files: the package documents themselves plus the
// fingerprint of every cross-package reference.
type Snapshot struct {
	Version    int           `yaml:"version"`
	Digest     digest.Digest `yaml:"digest"`
	Packages   []Document    `yaml:"packages"`
	References []Entry       `yaml:"references,omitempty"`
}

// Document is one package document as it was loaded
type Document struct {
	Name    string        `yaml:"name"`
	Source  string        `yaml:"source"`
	Digest  digest.Digest `yaml:"digest"`
	Content string        `yaml:"content"`
}

// Entry is the fingerprint of one referenced base definition
type Entry struct {
	Package     string        `yaml:"package"`
	Definition  string        `yaml:"definition"`
	Reference   string        `yaml:"reference"`
	Site        string        `yaml:"site,omitempty"`
	Fingerprint digest.Digest `yaml:"fingerprint"`
}

// Take snapshots g. Every package must have been loaded from a file.
func Take(g *resolver.Graph) (*Snapshot, error) {
	s := &Snapshot{Version: SnapshotVersion, Digest: g.Digest()}
	for _, name := range g.Packages() {
		p, _ := g.Package(name)
		if p.Source == "" {
			return nil, fmt.Errorf("package %s has no source file to snapshot", name)
		}
		data, err := os.ReadFile(p.Source)
		if err != nil {
			return nil, fmt.Errorf("failed to read package file: %w", err)
		}
		s.Packages = append(s.Packages, Document{
			Name:    name,
			Source:  p.Source,
			Digest:  digest.FromBytes(data),
			Content: string(data),
		})

		for _, d := range p.Definitions {
			decl, _ := g.Definition(name + "." + d.Name)
			for _, u := range usages(decl, name) {
				fp, _ := g.Fingerprint(u.ref.QualifiedName())
				s.References = append(s.References, Entry{
					Package:     name,
					Definition:  d.Name,
					Reference:   u.ref.QualifiedName(),
					Site:        u.site,
					Fingerprint: fp,
				})
			}
		}
	}
	return s, nil
}

// Write encodes the snapshot as YAML
func (s *Snapshot) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return enc.Close()
}

// ReadSnapshot decodes a snapshot and verifies its documents
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d (expected %d)", s.Version, SnapshotVersion)
	}
	for _, d := range s.Packages {
		if err := d.Digest.Validate(); err != nil {
			return nil, fmt.Errorf("snapshot of package %s: %w", d.Name, err)
		}
		if got := d.Digest.Algorithm().FromString(d.Content); got != d.Digest {
			return nil, fmt.Errorf("snapshot of package %s is corrupt: content digest %s, recorded %s", d.Name, got, d.Digest)
		}
	}
	return &s, nil
}

// Graph rebuilds the snapshotted graph
func (s *Snapshot) Graph() (*resolver.Graph, error) {
	pkgs := make([]*schema.Package, 0, len(s.Packages))
	for _, d := range s.Packages {
		p, err := schema.ParseBytes([]byte(d.Content))
		if err != nil {
			return nil, fmt.Errorf("snapshot of package %s: %w", d.Name, err)
		}
		p.Source = d.Source
		pkgs = append(pkgs, p)
	}
	return resolver.Build(pkgs...)
}

// CheckSnapshot compares the snapshotted graph against next
func CheckSnapshot(s *Snapshot, next *resolver.Graph) ([]Report, error) {
	old, err := s.Graph()
	if err != nil {
		return nil, err
	}
	return Check(old, next), nil
}
