package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/overhuman/eventstore/internal/event"
	"github.com/overhuman/eventstore/internal/security"
	"github.com/overhuman/eventstore/internal/storage"
)

const testKey = "test-device-key-1234"

type result struct {
	stdout string
	stderr string
	code   int
}

// execute runs the CLI against dir in namespace _u1 without consulting the
// environment.
func execute(t *testing.T, dir, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	args = append(args, "--dir", dir, "--key", testKey, "--namespace", "_u1")
	code := run(&RootOptions{}, args, strings.NewReader(stdin), &out, &errOut)

	assert.NotContains(t, out.String(), testKey, "key leaked to stdout")
	assert.NotContains(t, errOut.String(), testKey, "key leaked to stderr")
	return result{stdout: out.String(), stderr: errOut.String(), code: code}
}

// lastLine returns the final non-empty line of s. The audit trail is
// printed after any log output.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "eventstore", cmd.Use)
	assert.Contains(t, cmd.Long, "namespace")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"store", "fetch", "list", "delete", "purge", "stats", "version"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	nsFlag := cmd.PersistentFlags().Lookup("namespace")
	require.NotNil(t, nsFlag)
	assert.Equal(t, "n", nsFlag.Shorthand)

	for _, name := range []string{"dir", "key", "backend", "verbose", "audit"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing --%s", name)
	}
}

func TestStoreAndFetch(t *testing.T) {
	dir := t.TempDir()

	r := execute(t, dir, "", "store", "--id", "evt1", `{"a":1}`)
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Equal(t, "evt1\n", r.stdout)

	_, err := os.Stat(filepath.Join(dir, "evt1_u1"))
	require.NoError(t, err)

	r = execute(t, dir, "", "fetch", "evt1")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Equal(t, "{\"a\":1}\n", r.stdout)
}

func TestStore_FromStdinWithGeneratedID(t *testing.T) {
	dir := t.TempDir()

	r := execute(t, dir, "{\"b\":2}\n", "store", "--format", "json")
	require.Equal(t, ExitSuccess, r.code, r.stderr)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	_, err := uuid.Parse(resp.Data.ID)
	require.NoError(t, err, "generated id should be a UUID")

	r = execute(t, dir, "", "fetch", resp.Data.ID)
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Equal(t, "{\"b\":2}\n", r.stdout)
}

func TestStore_EmptyPayload(t *testing.T) {
	r := execute(t, t.TempDir(), "", "store", "--id", "evt1")
	assert.Equal(t, ExitCommandError, r.code)
	assert.Contains(t, r.stderr, "payload is empty")
}

func TestStore_InvalidID(t *testing.T) {
	r := execute(t, t.TempDir(), "", "store", "--id", "../escape", "{}")
	assert.Equal(t, ExitCommandError, r.code)
	assert.Contains(t, r.stderr, "invalid event")
}

func TestFetch_Missing(t *testing.T) {
	r := execute(t, t.TempDir(), "", "fetch", "nope", "--format", "json")
	assert.Equal(t, ExitFailure, r.code)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(r.stderr), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ExitFailure, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "not found")
}

func TestList_YAML(t *testing.T) {
	dir := t.TempDir()
	execute(t, dir, "", "store", "--id", "b", `{"n":2}`)
	execute(t, dir, "", "store", "--id", "a", `{"n":1}`)

	r := execute(t, dir, "", "list", "--format", "yaml")
	require.Equal(t, ExitSuccess, r.code, r.stderr)

	var resp struct {
		Status string     `yaml:"status"`
		Data   listResult `yaml:"data"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(r.stdout), &resp))
	assert.Equal(t, "_u1", resp.Data.Namespace)
	assert.Equal(t, []event.Event{event.New("a", `{"n":1}`), event.New("b", `{"n":2}`)}, resp.Data.Events)
}

func TestList_Text(t *testing.T) {
	dir := t.TempDir()
	execute(t, dir, "", "store", "--id", "evt1", "x")

	r := execute(t, dir, "", "list")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Equal(t, "evt1\tx\n", r.stdout)
}

func TestList_InvalidNamespace(t *testing.T) {
	var out, errOut bytes.Buffer
	args := []string{"list", "--dir", t.TempDir(), "--key", testKey, "--namespace", "a/b"}
	code := run(&RootOptions{}, args, strings.NewReader(""), &out, &errOut)

	assert.Equal(t, ExitCommandError, code)
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "invalid configuration")
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	execute(t, dir, "", "store", "--id", "evt1", "{}")

	r := execute(t, dir, "", "delete", "evt1", "ghost")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Equal(t, "removed evt1\nmissing ghost\n", r.stdout)

	r = execute(t, dir, "", "delete", "evt1")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Equal(t, "missing evt1\n", r.stdout)
}

func TestPurge(t *testing.T) {
	dir := t.TempDir()
	execute(t, dir, "", "store", "--id", "a", "1")
	execute(t, dir, "", "store", "--id", "b", "2")

	other, err := storage.NewFileStore(storage.Config{Namespace: "_u2", RootDir: dir, Key: testKey})
	require.NoError(t, err)
	require.NoError(t, other.Store(context.Background(), event.New("a", "keep")))

	r := execute(t, dir, "", "purge")
	assert.Equal(t, ExitCommandError, r.code)
	assert.Contains(t, r.stderr, "--force")

	r = execute(t, dir, "", "purge", "--force", "--format", "json")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.JSONEq(t, `{"status":"ok","data":{"namespace":"_u1","removed":2}}`, r.stdout)

	events, err := other.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestStats_CountsUnreadable(t *testing.T) {
	dir := t.TempDir()
	execute(t, dir, "", "store", "--id", "mine", "12345")

	foreign, err := storage.NewFileStore(storage.Config{Namespace: "_u1", RootDir: dir, Key: "some-other-device-key"})
	require.NoError(t, err)
	require.NoError(t, foreign.Store(context.Background(), event.New("theirs", "{}")))

	r := execute(t, dir, "", "stats", "--format", "json")
	require.Equal(t, ExitSuccess, r.code, r.stderr)

	var resp struct {
		Data statsResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &resp))
	assert.Equal(t, 1, resp.Data.Events)
	assert.Equal(t, 5, resp.Data.PayloadBytes)
	assert.Equal(t, int64(1), resp.Data.Unreadable)
	assert.Equal(t, []string{"theirs"}, resp.Data.UnreadableIDs)
	assert.Equal(t, "file", resp.Data.Backend)
	assert.Equal(t, 2, resp.Data.Fetches)
	assert.Equal(t, 1, resp.Data.AuditEvents)
	assert.Equal(t, int64(1), resp.Data.Counters["fetch.ok"])
	assert.Equal(t, int64(1), resp.Data.Counters["fetch.decrypt_failed"])
}

func TestStats_CountsReadFailures(t *testing.T) {
	dir := t.TempDir()
	execute(t, dir, "", "store", "--id", "mine", "12345")

	// A link to a directory is listed as an event but cannot be read.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o700))
	require.NoError(t, os.Symlink(filepath.Join(dir, "sub"), filepath.Join(dir, "linked_u1")))

	r := execute(t, dir, "", "stats", "--format", "json")
	require.Equal(t, ExitSuccess, r.code, r.stderr)

	var resp struct {
		Data statsResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &resp))
	assert.Equal(t, 1, resp.Data.Events)
	assert.Equal(t, int64(1), resp.Data.Unreadable)
	assert.Equal(t, []string{"linked"}, resp.Data.UnreadableIDs)
	assert.Equal(t, int64(1), resp.Data.Counters["fetch.failed"])
}

func TestAuditFlag(t *testing.T) {
	dir := t.TempDir()
	execute(t, dir, "", "store", "--id", "mine", "{}")

	foreign, err := storage.NewFileStore(storage.Config{Namespace: "_u1", RootDir: dir, Key: "some-other-device-key"})
	require.NoError(t, err)
	require.NoError(t, foreign.Store(context.Background(), event.New("theirs", "{}")))

	r := execute(t, dir, "", "list")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.NotContains(t, r.stderr, string(security.AuditDecryptFailed))

	r = execute(t, dir, "", "list", "--audit")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Equal(t, "mine\t{}\n", r.stdout)

	var trail []security.AuditEvent
	require.NoError(t, json.Unmarshal([]byte(lastLine(r.stderr)), &trail), r.stderr)
	require.Len(t, trail, 1)
	assert.Equal(t, security.AuditDecryptFailed, trail[0].Type)
	assert.Equal(t, "_u1", trail[0].Namespace)
	assert.Equal(t, "theirs", trail[0].Resource)
	assert.False(t, trail[0].Success)
}

func TestAuditFlag_RecordsPurge(t *testing.T) {
	dir := t.TempDir()
	execute(t, dir, "", "store", "--id", "a", "1")

	r := execute(t, dir, "", "purge", "--force", "--audit")
	require.Equal(t, ExitSuccess, r.code, r.stderr)

	var trail []security.AuditEvent
	require.NoError(t, json.Unmarshal([]byte(lastLine(r.stderr)), &trail), r.stderr)
	require.Len(t, trail, 1)
	assert.Equal(t, security.AuditNamespacePurge, trail[0].Type)
}

func TestSQLiteBackend(t *testing.T) {
	dir := t.TempDir()

	r := execute(t, dir, "", "store", "--backend", "sqlite", "--id", "evt1", "{}")
	require.Equal(t, ExitSuccess, r.code, r.stderr)

	_, err := os.Stat(filepath.Join(dir, storage.DatabaseName))
	require.NoError(t, err)

	r = execute(t, dir, "", "fetch", "--backend", "sqlite", "evt1")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Equal(t, "{}\n", r.stdout)
}

func TestInvalidFormat(t *testing.T) {
	r := execute(t, t.TempDir(), "", "list", "--format", "xml")
	assert.Equal(t, ExitCommandError, r.code)
	assert.Contains(t, r.stderr, "invalid format")
}

func TestUsageErrors(t *testing.T) {
	tests := map[string][]string{
		"unknown command": {"frobnicate"},
		"missing arg":     {"fetch"},
		"extra arg":       {"list", "extra"},
		"unknown flag":    {"list", "--bogus"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			r := execute(t, t.TempDir(), "", args...)
			assert.Equal(t, ExitCommandError, r.code, r.stderr)
		})
	}
}

func TestMissingKey(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(&RootOptions{}, []string{"list", "--dir", t.TempDir()}, strings.NewReader(""), &out, &errOut)

	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, errOut.String(), "no encryption key")
}

func TestVersion(t *testing.T) {
	r := execute(t, t.TempDir(), "", "version")
	require.Equal(t, ExitSuccess, r.code)
	assert.Equal(t, "eventstore v"+Version+"\n", r.stdout)
}

func TestVerboseLogsToStderr(t *testing.T) {
	r := execute(t, t.TempDir(), "", "store", "--id", "evt1", "-v", "{}")
	require.Equal(t, ExitSuccess, r.code)
	assert.Contains(t, r.stderr, `"op":"store"`)
	assert.Contains(t, r.stderr, `"component":"eventstore"`)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "bad", assert.AnError)))
}
