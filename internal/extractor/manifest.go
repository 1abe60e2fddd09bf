package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"dlfi/internal/types"
)

// ManifestSource reads a hand-written YAML manifest describing nodes to
// install, with file contents pulled from paths relative to the
// manifest itself. This is the batch counterpart to WatchDirSource: one
// shot, explicit structure, no watching.
//
//	nodes:
//	  - path: photos/2024/hike
//	    type: RECORD
//	    metadata:
//	      camera: Pixel 8
//	    tags: [nature, landscape]
//	    files:
//	      - name: IMG_0001.jpg
//	        source: ./raw/IMG_0001.jpg
//	    relationships:
//	      - relation: DEPICTS
//	        target: people/alice
type ManifestSource struct {
	path string
}

// NewManifestSource reads nodes from the YAML manifest at path.
func NewManifestSource(path string) *ManifestSource {
	return &ManifestSource{path: path}
}

// Name identifies this source for logging.
func (s *ManifestSource) Name() string { return fmt.Sprintf("manifest:%s", s.path) }

type manifest struct {
	Nodes []manifestNode `yaml:"nodes"`
}

type manifestNode struct {
	Path          string         `yaml:"path"`
	Type          string         `yaml:"type"`
	Metadata      map[string]any `yaml:"metadata"`
	Tags          []string       `yaml:"tags"`
	Files         []manifestFile `yaml:"files"`
	Relationships []manifestEdge `yaml:"relationships"`
}

type manifestFile struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
}

type manifestEdge struct {
	Relation string `yaml:"relation"`
	Target   string `yaml:"target"`
}

// Extract parses the manifest and emits one DiscoveredNode per entry.
// A malformed manifest ends the stream; a missing source file for one
// entry is surfaced on the error channel and the rest still emit.
func (s *ManifestSource) Extract(ctx context.Context) (<-chan DiscoveredNode, <-chan error) {
	nodes := make(chan DiscoveredNode)
	errs := make(chan error, 1)

	go func() {
		defer close(nodes)
		defer close(errs)

		data, err := os.ReadFile(s.path)
		if err != nil {
			errs <- fmt.Errorf("read manifest: %w", err)
			return
		}
		var m manifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			errs <- fmt.Errorf("parse manifest: %w", err)
			return
		}

		baseDir := filepath.Dir(s.path)
		for _, entry := range m.Nodes {
			node, err := s.toDiscovered(entry, baseDir)
			if err != nil {
				select {
				case errs <- err:
				case <-ctx.Done():
					return
				}
				continue
			}
			select {
			case nodes <- node:
			case <-ctx.Done():
				return
			}
		}
	}()

	return nodes, errs
}

func (s *ManifestSource) toDiscovered(entry manifestNode, baseDir string) (DiscoveredNode, error) {
	nodeType := types.NodeType(entry.Type)
	if entry.Type == "" {
		nodeType = types.Record
	}
	if !nodeType.IsValid() {
		return DiscoveredNode{}, fmt.Errorf("manifest entry %q: unknown type %q", entry.Path, entry.Type)
	}

	metadata := json.RawMessage(`{}`)
	if entry.Metadata != nil {
		data, err := json.Marshal(entry.Metadata)
		if err != nil {
			return DiscoveredNode{}, fmt.Errorf("manifest entry %q: metadata: %w", entry.Path, err)
		}
		metadata = data
	}

	files := make([]DiscoveredFile, 0, len(entry.Files))
	for _, f := range entry.Files {
		source := f.Source
		if !filepath.IsAbs(source) {
			source = filepath.Join(baseDir, source)
		}
		fh, err := os.Open(source)
		if err != nil {
			for _, opened := range files {
				if c, ok := opened.Reader.(io.Closer); ok {
					c.Close()
				}
			}
			return DiscoveredNode{}, fmt.Errorf("manifest entry %q: open %s: %w", entry.Path, f.Source, err)
		}
		name := f.Name
		if name == "" {
			name = filepath.Base(f.Source)
		}
		files = append(files, DiscoveredFile{DisplayName: name, Reader: &closeOnEOF{f: fh}})
	}

	rels := make([]DiscoveredRelationship, 0, len(entry.Relationships))
	for _, r := range entry.Relationships {
		rels = append(rels, DiscoveredRelationship{Relation: r.Relation, TargetPath: r.Target})
	}

	return DiscoveredNode{
		SuggestedPath: entry.Path,
		NodeType:      nodeType,
		Metadata:      metadata,
		Files:         files,
		Tags:          entry.Tags,
		Relationships: rels,
	}, nil
}

// closeOnEOF releases the underlying file as soon as the host finishes
// draining it, since DiscoveredFile carries a plain io.Reader with no
// close hook back to the source.
type closeOnEOF struct {
	f      *os.File
	closed bool
}

func (c *closeOnEOF) Read(p []byte) (int, error) {
	if c.closed {
		return 0, io.EOF
	}
	n, err := c.f.Read(p)
	if err != nil {
		c.f.Close()
		c.closed = true
	}
	return n, err
}

func (c *closeOnEOF) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.f.Close()
}
