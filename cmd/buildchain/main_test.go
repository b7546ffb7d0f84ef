package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/programmer4yugal/buildchain/pkg/config"
	"github.com/programmer4yugal/buildchain/pkg/ledger"
	"github.com/programmer4yugal/buildchain/pkg/store"
)

func liteEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, k := range []string{"BUILDCHAIN_CONFIG", "DATABASE_URL", "REDIS_ADDR", "GENESIS_HASH", "LEDGER_NAME", "VERIFY_STRICT", "OTEL_ENABLED", "SNAPSHOT_STORE", "SNAPSHOT_DIR"} {
		t.Setenv(k, "")
	}
	t.Setenv("DATA_DIR", dir)
	t.Setenv("LOG_LEVEL", "ERROR")
	t.Setenv("JWT_SECRET", "cli-test-secret")
	return dir
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	code, out, errOut := run(t, args...)
	require.Equal(t, exitOK, code, "stderr: %s", errOut)
	return out
}

func TestCLI_AppendTipVerify(t *testing.T) {
	liteEnv(t)

	code, out, _ := run(t, "tip")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "is empty")

	var road map[string]any
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "append", "--category", "projects", "--data", `{"title":"Road","budget":1000}`)), &road))
	assert.Equal(t, ledger.GenesisHash, road["previousHash"])

	var cement map[string]any
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "append", "--category", "materials", "--data", `{"material":"Cement","quantity":50}`)), &cement))
	assert.Equal(t, road["hash"], cement["previousHash"])

	out = mustRun(t, "tip")
	assert.Contains(t, out, "Block 2: Materials")

	out = mustRun(t, "verify")
	assert.Contains(t, out, "is VALID (2 blocks, stored linkage)")
	assert.Contains(t, out, "Projects")
}

func TestCLI_VerifyDetectsTampering(t *testing.T) {
	liteEnv(t)
	mustRun(t, "append", "--category", "projects", "--data", `{"title":"Road","budget":1000}`)
	mustRun(t, "append", "--category", "materials", "--data", `{"material":"Cement","quantity":50}`)

	cfg, err := config.Load()
	require.NoError(t, err)
	ctx := context.Background()
	a, err := openApp(ctx, cfg)
	require.NoError(t, err)
	docs, err := a.store.QueryOrderedByTimestamp(ctx, ledger.DefaultLedgerName, store.Ascending, 0)
	require.NoError(t, err)
	require.NoError(t, a.store.Update(ctx, ledger.DefaultLedgerName, docs[0].ID, store.Record{"budget": 9999}))
	require.NoError(t, a.Close(ctx))

	code, out, _ := run(t, "verify")
	assert.Equal(t, exitIntegrity, code)
	assert.Contains(t, out, "TAMPERED block 1 (Road)")

	code, out, _ = run(t, "verify", "--json", "--strict")
	assert.Equal(t, exitIntegrity, code)
	var report ledger.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, ledger.ModeStrict, report.Mode)
	assert.False(t, report.IsValid)
}

func TestCLI_RuntimeErrors(t *testing.T) {
	liteEnv(t)

	t.Setenv("GENESIS_HASH", "0xnothex")
	code, _, errOut := run(t, "verify")
	assert.Equal(t, exitRuntime, code)
	assert.Contains(t, errOut, "Error")

	t.Setenv("GENESIS_HASH", "")
	code, _, errOut = run(t, "append", "--category", "milestones", "--data", `{"projectId":"p1"}`)
	assert.Equal(t, exitRuntime, code)
	assert.Contains(t, errOut, "approving a submission")

	code, _, _ = run(t, "append", "--category", "projects", "--data", `[1,2]`)
	assert.Equal(t, exitRuntime, code)

	code, _, errOut = run(t, "append", "--category", "projects", "--data", `{"budget":5}`)
	assert.Equal(t, exitRuntime, code)
	assert.Contains(t, errOut, "title is required")
}

func TestCLI_SubmissionFlow(t *testing.T) {
	liteEnv(t)

	var sub map[string]any
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "submissions", "submit",
		"--project", "p1", "--description", "Foundation poured", "--from", "acme")), &sub))
	id := sub["id"].(string)
	require.NotEmpty(t, id)

	assert.Contains(t, mustRun(t, "submissions", "list"), id)

	var block map[string]any
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "submissions", "approve", id, "--approver", "site-admin")), &block))
	assert.Equal(t, "milestones", block["type"])
	assert.Equal(t, "site-admin", block["approvedBy"])

	code, _, _ := run(t, "submissions", "approve", id, "--approver", "site-admin")
	assert.Equal(t, exitRuntime, code)

	assert.NotContains(t, mustRun(t, "submissions", "list"), id)
	assert.Contains(t, mustRun(t, "submissions", "list", "--status", "approved"), id)
}

func TestCLI_SnapshotAndReconcile(t *testing.T) {
	liteEnv(t)
	mustRun(t, "append", "--category", "projects", "--data", `{"title":"Road"}`)

	out := mustRun(t, "snapshot")
	assert.Contains(t, out, "Blocks: 1")
	var hash string
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(line, "Content hash: "); ok {
			hash = v
		}
	}
	require.NotEmpty(t, hash)

	out = mustRun(t, "snapshot", "--verify", hash)
	assert.Contains(t, out, "is VALID (1 blocks")

	code, _, _ := run(t, "snapshot", "--verify", "sha256:"+strings.Repeat("0", 64))
	assert.Equal(t, exitIntegrity, code)

	out = mustRun(t, "reconcile", "--dry-run")
	assert.Contains(t, out, "Projects")
}

func TestCLI_AppendDefinedMilestoneDefaults(t *testing.T) {
	liteEnv(t)

	var def map[string]any
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "append", "--category", "defined_milestones",
		"--data", `{"projectId":"p1","title":"Foundation"}`)), &def))
	assert.Equal(t, ledger.StatusDefined, def["status"])
	assert.NotEmpty(t, def["createdAt"])

	code, _, _ := run(t, "append", "--category", "defined_milestones",
		"--data", `{"projectId":"p1","title":"Roof","status":"approved"}`)
	assert.Equal(t, exitRuntime, code)
}

func TestCLI_Token(t *testing.T) {
	liteEnv(t)

	out := mustRun(t, "token", "--sub", "site-admin", "--role", "admin")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "."), 3)

	out = mustRun(t, "token", "--sub", "citizen", "--role", "public")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "."), 3)

	code, _, _ := run(t, "token", "--sub", "x", "--role", "superuser")
	assert.Equal(t, exitRuntime, code)

	t.Setenv("JWT_SECRET", "")
	code, _, _ = run(t, "token", "--sub", "x")
	assert.Equal(t, exitRuntime, code)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Defined Milestones", displayName("defined_milestones"))
	assert.Equal(t, "Labor Registry", displayName("labor_registry"))
	assert.Equal(t, "Projects", displayName("projects"))
}
