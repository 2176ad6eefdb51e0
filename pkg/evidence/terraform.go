package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/DrSkyle/faultline/pkg/resource"
)

// ErrStateLocked is returned while terraform holds the state lock.
var ErrStateLocked = errors.New("terraform state is locked")

// State represents a Terraform state file (format version 4).
type State struct {
	Version          int             `json:"version"`
	TerraformVersion string          `json:"terraform_version"`
	Resources        []StateResource `json:"resources"`
}

// StateResource represents a state resource block.
type StateResource struct {
	Module    string          `json:"module,omitempty"` // e.g. "module.payments"
	Mode      string          `json:"mode"`             // "managed" or "data"
	Type      string          `json:"type"`
	Name      string          `json:"name"`
	Instances []StateInstance `json:"instances"`
}

// StateInstance carries the addresses this instance was planned after.
type StateInstance struct {
	Dependencies []string `json:"dependencies,omitempty"`
}

// Address is the resource address used as the topology id.
func (r StateResource) Address() string {
	base := r.Type + "." + r.Name
	if r.Mode == "data" {
		base = "data." + base
	}
	if r.Module != "" {
		base = r.Module + "." + base
	}
	return base
}

// BackendConfig represents the parsed remote backend configuration.
type BackendConfig struct {
	Type   string
	Bucket string
	Key    string
	Region string
}

// S3Getter fetches remote state objects.
type S3Getter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ParseState parses state JSON.
func ParseState(data []byte) (*State, error) {
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse terraform state: %w", err)
	}
	return &state, nil
}

// ParseStateFile reads a local state file, refusing locked state.
func ParseStateFile(path string) (*State, error) {
	lockPath := path + ".lock.info"
	if _, err := os.Stat(lockPath); err == nil {
		return nil, fmt.Errorf("%w (lock file found: %s)", ErrStateLocked, lockPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	return ParseState(data)
}

// DetectBackend scans the directory for a terraform block declaring an s3 backend.
func DetectBackend(rootDir string) (*BackendConfig, error) {
	parser := hclparse.NewParser()
	var backend *BackendConfig

	err := walkTerraform(rootDir, func(path, _ string) error {
		f, diags := parser.ParseHCLFile(path)
		if diags != nil && diags.HasErrors() {
			return nil
		}
		body, ok := f.Body.(*hclsyntax.Body)
		if !ok {
			return nil
		}
		for _, block := range body.Blocks {
			if block.Type != "terraform" {
				continue
			}
			for _, inner := range block.Body.Blocks {
				if inner.Type != "backend" || len(inner.Labels) == 0 || inner.Labels[0] != "s3" {
					continue
				}
				backend = &BackendConfig{
					Type:   "s3",
					Bucket: literalString(inner.Body, "bucket"),
					Key:    literalString(inner.Body, "key"),
					Region: literalString(inner.Body, "region"),
				}
				return io.EOF // Stop walking
			}
		}
		return nil
	})
	if errors.Is(err, io.EOF) && backend != nil {
		return backend, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("no supported backend found in %s", rootDir)
}

// literalString evaluates a constant string attribute; anything else yields "".
func literalString(body *hclsyntax.Body, name string) string {
	attr, ok := body.Attributes[name]
	if !ok {
		return ""
	}
	v, diags := attr.Expr.Value(nil)
	if diags.HasErrors() || v.IsNull() || !v.IsKnown() || v.Type() != cty.String {
		return ""
	}
	return v.AsString()
}

// TerraformStateSource reports the dependencies terraform recorded in state.
type TerraformStateSource struct {
	// Path is a state file, or a configuration directory whose s3 backend is fetched.
	Path       string
	S3         S3Getter
	Confidence float64
	now        func() time.Time
}

// NewTerraformStateSource builds a source; s3 may be nil when only local state is used.
func NewTerraformStateSource(path string, s3 S3Getter) *TerraformStateSource {
	return &TerraformStateSource{Path: path, S3: s3, Confidence: 0.9, now: time.Now}
}

func (s *TerraformStateSource) Name() string { return resource.SourceInfrastructure }

// Collect turns every instance dependency into an edge from the resource to the dependency.
func (s *TerraformStateSource) Collect(ctx context.Context) ([]resource.Evidence, error) {
	state, origin, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()

	type edge struct{ src, tgt string }
	seen := make(map[edge]struct{})
	var out []resource.Evidence
	for _, res := range state.Resources {
		if res.Mode != "managed" {
			continue
		}
		src := res.Address()
		for _, inst := range res.Instances {
			for _, dep := range inst.Dependencies {
				e := edge{src, dep}
				if _, dup := seen[e]; dup || dep == src {
					continue
				}
				seen[e] = struct{}{}
				out = append(out, resource.Evidence{
					Source:     s.Name(),
					SourceID:   src,
					TargetID:   dep,
					Confidence: s.Confidence,
					Items:      []string{origin},
					DetectedAt: now,
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		return out[i].TargetID < out[j].TargetID
	})
	return out, nil
}

func (s *TerraformStateSource) load(ctx context.Context) (*State, string, error) {
	info, err := os.Stat(s.Path)
	if err == nil && !info.IsDir() {
		state, err := ParseStateFile(s.Path)
		return state, "tfstate:" + filepath.Base(s.Path), err
	}
	if err != nil {
		return nil, "", fmt.Errorf("terraform state %s: %w", s.Path, err)
	}

	backend, err := DetectBackend(s.Path)
	if err != nil {
		return nil, "", err
	}
	if s.S3 == nil {
		return nil, "", fmt.Errorf("remote state s3://%s/%s needs an s3 client", backend.Bucket, backend.Key)
	}
	out, err := s.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(backend.Bucket),
		Key:    aws.String(backend.Key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch remote state: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read state body: %w", err)
	}
	state, err := ParseState(data)
	return state, fmt.Sprintf("tfstate:s3://%s/%s", backend.Bucket, backend.Key), err
}

// walkTerraform visits every .tf file under rootDir, skipping .terraform and .git.
func walkTerraform(rootDir string, visit func(path, rel string) error) error {
	return filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == ".terraform" || info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(info.Name(), ".tf") {
			return nil
		}
		rel, _ := filepath.Rel(rootDir, path)
		return visit(path, filepath.ToSlash(rel))
	})
}
