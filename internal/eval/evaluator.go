package eval

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/apple/pkl-go/pkl"

	"github.com/provisor-io/provisor/internal/ir"
)

// Evaluator evaluates Pkl step manifests into IR types.
type Evaluator struct {
	projectDir string
}

func NewEvaluator(projectDir string) *Evaluator {
	return &Evaluator{
		projectDir: projectDir,
	}
}

// LoadManifest evaluates a manifest file. External properties (platform
// facts, --prop overrides) are visible to the manifest through
// read("prop:...") so per-platform branching lives in the manifest, not in
// the engine.
func (e *Evaluator) LoadManifest(ctx context.Context, entryPoint string, properties map[string]string) (*ir.Manifest, error) {
	opts := []func(*pkl.EvaluatorOptions){pkl.PreconfiguredOptions}
	if len(properties) > 0 {
		opts = append(opts, func(o *pkl.EvaluatorOptions) {
			if o.Properties == nil {
				o.Properties = make(map[string]string)
			}
			for k, v := range properties {
				o.Properties[k] = v
			}
		})
	}

	evaluator, err := pkl.NewEvaluator(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluator: %w", err)
	}
	defer evaluator.Close()

	var manifest ir.Manifest
	source := pkl.FileSource(filepath.Join(e.projectDir, entryPoint))
	if err := evaluator.EvaluateModule(ctx, source, &manifest); err != nil {
		return nil, fmt.Errorf("failed to evaluate manifest: %w", err)
	}

	return &manifest, nil
}
