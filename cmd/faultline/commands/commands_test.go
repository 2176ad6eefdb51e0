package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the CLI against the demo topology with history disabled.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "faultline.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("log:\n  level: error\nhistory:\n  backend: none\n"), 0o600))

	var out, errOut bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", cfg, "--demo"}, args...))
	err := root.Execute()
	return out.String(), err
}

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m), s)
	return m
}

func TestScan_JSON(t *testing.T) {
	out, err := run(t, "scan", "-o", "json")
	require.NoError(t, err)

	body := decode(t, out)
	snap := body["snapshot"].(map[string]any)
	assert.NotZero(t, snap["total_count"])

	var ids []string
	for _, e := range snap["spofs"].([]any) {
		ids = append(ids, e.(map[string]any)["resource_id"].(string))
	}
	assert.Contains(t, ids, "orders-db")
	assert.NotContains(t, ids, "session-cache")
}

func TestScan_Text(t *testing.T) {
	out, err := run(t, "scan")
	require.NoError(t, err)
	assert.Contains(t, out, "SINGLE POINTS OF FAILURE")
	assert.Contains(t, out, "orders-db")
}

func TestRisk(t *testing.T) {
	out, err := run(t, "risk", "orders-db", "--at", "2024-11-29T15:00:00Z", "-o", "json")
	require.NoError(t, err)
	body := decode(t, out)
	assessment := body["assessment"].(map[string]any)
	assert.Equal(t, "orders-db", assessment["resource_id"])
	assert.Contains(t, body, "time_context")

	_, err = run(t, "risk", "missing")
	assert.Error(t, err)

	_, err = run(t, "risk", "orders-db", "--at", "yesterday")
	assert.Error(t, err)
}

func TestBlast(t *testing.T) {
	out, err := run(t, "blast", "orders-db", "-o", "json")
	require.NoError(t, err)
	body := decode(t, out)
	assert.Equal(t, "orders-db", body["resource_id"])
	assert.NotZero(t, body["total_affected"])
}

func TestVerify(t *testing.T) {
	out, err := run(t, "verify", "checkout-api", "orders-db", "-o", "json")
	require.NoError(t, err)
	body := decode(t, out)
	assert.Equal(t, "checkout-api", body["source_id"])
	assert.Len(t, body["evidence_sources"], 2)

	_, err = run(t, "verify", "checkout-api")
	assert.Error(t, err)
}

func TestStaleAndDecay(t *testing.T) {
	out, err := run(t, "stale", "-o", "json")
	require.NoError(t, err)
	var stale []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &stale))
	require.Len(t, stale, 1)
	assert.Equal(t, "catalog-api", stale[0]["source_id"])

	out, err = run(t, "decay", "--rate", "0.5", "--days", "30", "-o", "json")
	require.NoError(t, err)
	body := decode(t, out)
	assert.NotZero(t, body["updated"])
	assert.EqualValues(t, 0.5, body["rate"])

	_, err = run(t, "decay", "--rate", "2")
	assert.Error(t, err)
}

func TestPredict(t *testing.T) {
	out, err := run(t, "predict", "record", "--resource", "orders-db", "--probability", "0.8", "-o", "json")
	require.NoError(t, err)
	body := decode(t, out)
	assert.Equal(t, "pending", body["status"])
	assert.NotEmpty(t, body["id"])

	_, err = run(t, "predict", "record", "--resource", "orders-db", "--probability", "1.5")
	assert.Error(t, err)

	_, err = run(t, "predict", "validate", "nope", "--outcome", "sideways")
	assert.Error(t, err)

	out, err = run(t, "predict", "accuracy", "-o", "json")
	require.NoError(t, err)
	assert.EqualValues(t, 0, decode(t, out)["validated_count"])
}

func TestWindow(t *testing.T) {
	out, err := run(t, "window", "--from", "2024-03-04T00:00:00Z", "--days", "2", "--limit", "3", "-o", "json")
	require.NoError(t, err)
	var windows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &windows))
	assert.Len(t, windows, 3)
}

func TestExport(t *testing.T) {
	target := t.TempDir()
	out, err := run(t, "export", "--format", "csv", "--target", target, "--blast", "-o", "json")
	require.NoError(t, err)

	keys := decode(t, out)["keys"].([]any)
	require.Len(t, keys, 2)
	for _, k := range keys {
		_, err := os.Stat(filepath.Join(target, k.(string)))
		assert.NoError(t, err)
	}

	_, err = run(t, "export", "--format", "xml", "--target", target)
	assert.Error(t, err)
}

func TestOutputFlagValidated(t *testing.T) {
	_, err := run(t, "scan", "-o", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output")
}

func TestVersionAndCompletion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Faultline")

	out, err = run(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "faultline")

	_, err = run(t, "completion", "tcsh")
	assert.Error(t, err)
}
