package evidence

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"

	"github.com/DrSkyle/faultline/pkg/resource"
)

// Roots that never name another resource.
var ignoredRoots = map[string]bool{
	"var":       true,
	"local":     true,
	"count":     true,
	"each":      true,
	"path":      true,
	"terraform": true,
	"self":      true,
}

// HCLSource finds resource references in terraform configuration.
// An explicit depends_on entry is stronger evidence than an attribute reference.
type HCLSource struct {
	Dir                 string
	ReferenceConfidence float64
	DependsOnConfidence float64
	now                 func() time.Time
}

func NewHCLSource(dir string) *HCLSource {
	return &HCLSource{Dir: dir, ReferenceConfidence: 0.7, DependsOnConfidence: 0.85, now: time.Now}
}

func (s *HCLSource) Name() string { return resource.SourceCodeScan }

type reference struct {
	confidence float64
	items      []string
}

// Collect parses every .tf file and reports one edge per referencing resource and target.
// Files that fail to parse are skipped.
func (s *HCLSource) Collect(ctx context.Context) ([]resource.Evidence, error) {
	parser := hclparse.NewParser()
	refs := make(map[[2]string]*reference)

	err := walkTerraform(s.Dir, func(path, rel string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, diags := parser.ParseHCLFile(path)
		if diags != nil && diags.HasErrors() {
			return nil
		}
		body, ok := f.Body.(*hclsyntax.Body)
		if !ok {
			return nil
		}
		for _, block := range body.Blocks {
			src := blockAddress(block)
			if src == "" {
				continue
			}
			s.scanBody(block.Body, src, rel, refs)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.Dir, err)
	}

	now := s.now()
	out := make([]resource.Evidence, 0, len(refs))
	for key, ref := range refs {
		sort.Strings(ref.items)
		out = append(out, resource.Evidence{
			Source:     s.Name(),
			SourceID:   key[0],
			TargetID:   key[1],
			Confidence: ref.confidence,
			Items:      ref.items,
			DetectedAt: now,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		return out[i].TargetID < out[j].TargetID
	})
	return out, nil
}

func (s *HCLSource) scanBody(body *hclsyntax.Body, src, file string, refs map[[2]string]*reference) {
	for name, attr := range body.Attributes {
		conf := s.ReferenceConfidence
		if name == "depends_on" {
			conf = s.DependsOnConfidence
		}
		for _, tr := range attr.Expr.Variables() {
			tgt := traversalAddress(tr)
			if tgt == "" || tgt == src {
				continue
			}
			key := [2]string{src, tgt}
			ref, ok := refs[key]
			if !ok {
				ref = &reference{}
				refs[key] = ref
			}
			if conf > ref.confidence {
				ref.confidence = conf
			}
			item := fmt.Sprintf("%s:%d", file, tr.SourceRange().Start.Line)
			if !contains(ref.items, item) {
				ref.items = append(ref.items, item)
			}
		}
	}
	for _, nested := range body.Blocks {
		s.scanBody(nested.Body, src, file, refs)
	}
}

// blockAddress names resource, data and module blocks; other blocks are ignored.
func blockAddress(b *hclsyntax.Block) string {
	switch {
	case b.Type == "resource" && len(b.Labels) == 2:
		return b.Labels[0] + "." + b.Labels[1]
	case b.Type == "data" && len(b.Labels) == 2:
		return "data." + b.Labels[0] + "." + b.Labels[1]
	case b.Type == "module" && len(b.Labels) == 1:
		return "module." + b.Labels[0]
	}
	return ""
}

// traversalAddress maps aws_db_instance.main.address to aws_db_instance.main,
// data.x.y.id to data.x.y and module.m.out to module.m.
func traversalAddress(tr hcl.Traversal) string {
	root := tr.RootName()
	if root == "" || ignoredRoots[root] {
		return ""
	}
	attrs := make([]string, 0, 2)
	for _, step := range tr[1:] {
		a, ok := step.(hcl.TraverseAttr)
		if !ok {
			break
		}
		attrs = append(attrs, a.Name)
		if len(attrs) == 2 {
			break
		}
	}
	switch root {
	case "module":
		if len(attrs) < 1 {
			return ""
		}
		return "module." + attrs[0]
	case "data":
		if len(attrs) < 2 {
			return ""
		}
		return "data." + attrs[0] + "." + attrs[1]
	default:
		if len(attrs) < 1 {
			return ""
		}
		return root + "." + attrs[0]
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
