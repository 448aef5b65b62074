package hclspec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/riskflow/internal/config"
	"github.com/vk/riskflow/internal/ctxlog"
)

// Loader implements config.Loader for HCL graph definition files.
type Loader struct{}

var _ config.Loader = (*Loader)(nil)

// NewLoader returns a Loader for .hcl graph definitions.
func NewLoader() *Loader { return &Loader{} }

var fileSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "node", LabelNames: []string{"type", "id"}},
		{Type: "edge"},
		{Type: "conditional_edge"},
		{Type: "decision"},
	},
}

// Load reads one .hcl file, or every .hcl file in a directory, and merges
// the declared blocks into a single model.
func (l *Loader) Load(ctx context.Context, path string) (*config.Model, error) {
	logger := ctxlog.From(ctx)

	files, err := collectFiles(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl graph definition found at %s", path)
	}
	logger.Debug("Loading graph definition.", "files", len(files))

	model := &config.Model{}
	parser := hclparse.NewParser()
	for _, file := range files {
		f, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parsing %s: %w", file, diags)
		}
		if err := l.decodeFile(f.Body, model); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", file, err)
		}
	}

	logger.Debug("Graph definition loaded.",
		"nodes", len(model.Nodes),
		"edges", len(model.Edges),
		"conditional_edges", len(model.ConditionalEdges),
	)
	return model, nil
}

func collectFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".hcl") {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func (l *Loader) decodeFile(body hcl.Body, model *config.Model) error {
	content, diags := body.Content(fileSchema)
	if diags.HasErrors() {
		return diags
	}

	for _, block := range content.Blocks {
		switch block.Type {
		case "node":
			spec, err := decodeNode(block)
			if err != nil {
				return err
			}
			model.Nodes = append(model.Nodes, spec)
		case "edge":
			var edge struct {
				From string `hcl:"from"`
				To   string `hcl:"to"`
			}
			if diags := gohcl.DecodeBody(block.Body, nil, &edge); diags.HasErrors() {
				return diags
			}
			model.Edges = append(model.Edges, config.EdgeSpec{From: edge.From, To: edge.To})
		case "conditional_edge":
			spec, err := decodeConditionalEdge(block)
			if err != nil {
				return err
			}
			model.ConditionalEdges = append(model.ConditionalEdges, spec)
		case "decision":
			spec, err := decodeDecision(block)
			if err != nil {
				return err
			}
			model.Decision = spec
		}
	}
	return nil
}

func decodeNode(block *hcl.Block) (config.NodeSpec, error) {
	spec := config.NodeSpec{
		Type: block.Labels[0],
		ID:   block.Labels[1],
	}
	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return spec, diags
	}
	if len(attrs) > 0 {
		spec.Params = make(map[string]any, len(attrs))
	}
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return spec, diags
		}
		goVal, err := ctyToGo(val)
		if err != nil {
			return spec, fmt.Errorf("node %q param %q: %w", spec.ID, name, err)
		}
		spec.Params[name] = goVal
	}
	return spec, nil
}

func decodeConditionalEdge(block *hcl.Block) (config.ConditionalEdgeSpec, error) {
	var raw struct {
		From      string         `hcl:"from"`
		Condition string         `hcl:"condition,optional"`
		Routes    hcl.Expression `hcl:"routes"`
	}
	if diags := gohcl.DecodeBody(block.Body, nil, &raw); diags.HasErrors() {
		return config.ConditionalEdgeSpec{}, diags
	}
	spec := config.ConditionalEdgeSpec{
		From:      raw.From,
		Condition: raw.Condition,
		Routes:    map[string]string{},
	}
	if spec.Condition == "" {
		spec.Condition = "default"
	}
	val, diags := raw.Routes.Value(nil)
	if diags.HasErrors() {
		return spec, diags
	}
	if err := requireObject(val, "routes"); err != nil {
		return spec, err
	}
	for it := val.ElementIterator(); it.Next(); {
		k, v := it.Element()
		if v.Type() != cty.String {
			return spec, fmt.Errorf("route %q must name a target node, got %s", k.AsString(), v.Type().FriendlyName())
		}
		spec.Routes[k.AsString()] = v.AsString()
	}
	return spec, nil
}

// requireObject rejects non-object attribute values before iteration;
// ElementIterator panics on bare scalars.
func requireObject(val cty.Value, attr string) error {
	if t := val.Type(); !t.IsObjectType() && !t.IsMapType() {
		return fmt.Errorf("%s must be an object of key/value pairs, got %s", attr, t.FriendlyName())
	}
	return nil
}

func decodeDecision(block *hcl.Block) (config.DecisionSpec, error) {
	var raw struct {
		Decline      float64        `hcl:"decline"`
		Review       float64        `hcl:"review"`
		MinAnalyzers int            `hcl:"min_analyzers,optional"`
		Weights      hcl.Expression `hcl:"weights,optional"`
	}
	if diags := gohcl.DecodeBody(block.Body, nil, &raw); diags.HasErrors() {
		return config.DecisionSpec{}, diags
	}
	spec := config.DecisionSpec{
		DeclineAt:    raw.Decline,
		ReviewAt:     raw.Review,
		MinAnalyzers: raw.MinAnalyzers,
	}
	if raw.Weights != nil {
		val, diags := raw.Weights.Value(nil)
		if diags.HasErrors() {
			return spec, diags
		}
		if !val.IsNull() {
			if err := requireObject(val, "weights"); err != nil {
				return spec, err
			}
			spec.Weights = map[string]float64{}
			for it := val.ElementIterator(); it.Next(); {
				k, v := it.Element()
				if v.Type() != cty.Number {
					return spec, fmt.Errorf("weight %q must be a number, got %s", k.AsString(), v.Type().FriendlyName())
				}
				f, _ := v.AsBigFloat().Float64()
				spec.Weights[k.AsString()] = f
			}
		}
	}
	return spec, nil
}
