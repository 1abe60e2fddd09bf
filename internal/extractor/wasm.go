package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"dlfi/internal/types"
)

// WasmSource runs a sandboxed WASI module as an extraction strategy:
// the module writes one JSON array of wasmDiscovery values to stdout
// and exits. Running third-party extraction logic as a WASM guest
// (rather than a Go plugin or subprocess) keeps a malformed or hostile
// extractor from touching the archive directly; it can only describe
// nodes for the host to install.
type WasmSource struct {
	modulePath string
	runtime    wazero.RuntimeConfig
}

// NewWasmSource loads the compiled WASI module at modulePath.
func NewWasmSource(modulePath string) *WasmSource {
	return &WasmSource{modulePath: modulePath, runtime: wazero.NewRuntimeConfig()}
}

// Name identifies this source for logging.
func (s *WasmSource) Name() string { return fmt.Sprintf("wasm:%s", s.modulePath) }

// wasmDiscovery is the wire shape a guest module writes to stdout: one
// JSON array of these values, files carrying base64-encoded bytes
// since WASI stdout is a byte stream, not a channel of readers.
type wasmDiscovery struct {
	SuggestedPath string                   `json:"suggested_path"`
	NodeType      types.NodeType           `json:"node_type"`
	Metadata      json.RawMessage          `json:"metadata"`
	Tags          []string                 `json:"tags"`
	Files         []wasmFile               `json:"files"`
	Relationships []DiscoveredRelationship `json:"relationships"`
}

type wasmFile struct {
	DisplayName   string `json:"display_name"`
	ContentBase64 string `json:"content_base64"`
}

// Extract instantiates the module, lets it run to completion, and
// decodes its stdout into DiscoveredNodes. WASM extraction is a single
// batch run, not a long-lived stream, so both channels are fully
// populated (or the error channel gets one entry) before either closes.
func (s *WasmSource) Extract(ctx context.Context) (<-chan DiscoveredNode, <-chan error) {
	nodes := make(chan DiscoveredNode)
	errs := make(chan error, 1)

	go func() {
		defer close(nodes)
		defer close(errs)

		wasmBytes, err := os.ReadFile(s.modulePath)
		if err != nil {
			errs <- fmt.Errorf("read wasm module %s: %w", s.modulePath, err)
			return
		}

		rt := wazero.NewRuntimeWithConfig(ctx, s.runtime)
		defer rt.Close(ctx)

		if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
			errs <- fmt.Errorf("instantiate WASI: %w", err)
			return
		}

		var stdout bytes.Buffer
		cfg := wazero.NewModuleConfig().
			WithStdout(&stdout).
			WithStderr(os.Stderr).
			WithStartFunctions("_start")

		mod, err := rt.InstantiateWithConfig(ctx, wasmBytes, cfg)
		if err != nil {
			errs <- fmt.Errorf("run wasm module %s: %w", s.modulePath, err)
			return
		}
		defer mod.Close(ctx)

		var discoveries []wasmDiscovery
		if err := json.Unmarshal(stdout.Bytes(), &discoveries); err != nil {
			errs <- fmt.Errorf("decode wasm module output: %w", err)
			return
		}

		for _, d := range discoveries {
			node, err := d.toDiscoveredNode()
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

func (d wasmDiscovery) toDiscoveredNode() (DiscoveredNode, error) {
	files := make([]DiscoveredFile, 0, len(d.Files))
	for _, f := range d.Files {
		raw, err := base64.StdEncoding.DecodeString(f.ContentBase64)
		if err != nil {
			return DiscoveredNode{}, fmt.Errorf("decode file %q: %w", f.DisplayName, err)
		}
		files = append(files, DiscoveredFile{DisplayName: f.DisplayName, Reader: bytes.NewReader(raw)})
	}
	return DiscoveredNode{
		SuggestedPath: d.SuggestedPath,
		NodeType:      d.NodeType,
		Metadata:      d.Metadata,
		Tags:          d.Tags,
		Files:         files,
		Relationships: d.Relationships,
	}, nil
}
