package cli

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/sealed-log/pkg/sealedlog"
	"github.com/tendant/sealed-log/pkg/sealedlog/api"
	"github.com/tendant/sealed-log/pkg/sealedlog/presets"
	"gopkg.in/yaml.v3"
)

type server struct {
	url    string
	tokens map[sealedlog.Identity]string
}

func newServer(t *testing.T) *server {
	t.Helper()
	svc := presets.NewTesting(t, presets.WithTestKeyRecord("pk-1", "alice"))

	tokenAuth := api.NewTokenAuth("cli-test")
	r := chi.NewRouter()
	r.Mount("/api/v1", api.NewHandler(svc, tokenAuth).Routes())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	s := &server{url: srv.URL + "/api/v1", tokens: map[sealedlog.Identity]string{}}
	for _, id := range []sealedlog.Identity{"alice", "bob"} {
		tok, err := api.IssueToken(tokenAuth, id)
		require.NoError(t, err)
		s.tokens[id] = tok
	}
	return s
}

// run executes sealedctl as id with the given stdin and returns stdout.
func (s *server) run(t *testing.T, id sealedlog.Identity, stdin []byte, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(bytes.NewReader(stdin))
	cmd.SetArgs(append([]string{"--server", s.url, "--token", s.tokens[id]}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func sealed(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 3)
	}
	return b
}

func TestSubmitCountRead(t *testing.T) {
	s := newServer(t)
	payload := sealed(200)

	out, err := s.run(t, "bob", payload, "submit", "--topic", "inbox")
	require.NoError(t, err)
	assert.Contains(t, out, "index 0")

	out, err = s.run(t, "bob", nil, "count", "bob", "--topic", "inbox")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	out, err = s.run(t, "bob", nil, "read", "bob", "0", "--topic", "inbox")
	require.NoError(t, err)
	assert.Equal(t, payload, []byte(out))

	dest := filepath.Join(t.TempDir(), "payload.bin")
	_, err = s.run(t, "alice", nil, "read", "bob", "0", "--topic", "inbox", "--file", dest)
	require.NoError(t, err)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestSubmitFromFile(t *testing.T) {
	s := newServer(t)
	src := filepath.Join(t.TempDir(), "msg.bin")
	require.NoError(t, os.WriteFile(src, sealed(64), 0600))

	out, err := s.run(t, "bob", nil, "-o", "json", "submit", src, "-t", "files")
	require.NoError(t, err)

	var resp api.MessageResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "bob", resp.Owner)
	assert.Equal(t, "files", resp.Topic)
	assert.Equal(t, int64(64), resp.Size)
}

func TestSubmitRejected(t *testing.T) {
	s := newServer(t)
	plain := []byte("the quick brown fox jumps over the lazy dog, twice over")

	_, err := s.run(t, "bob", plain, "submit", "--topic", "inbox")
	require.Error(t, err)
	assert.ErrorIs(t, err, sealedlog.ErrRejected)

	out, err := s.run(t, "bob", nil, "count", "bob", "--topic", "inbox")
	require.NoError(t, err)
	assert.Equal(t, "0\n", out)
}

func TestSubmitPrecheckStopsLocally(t *testing.T) {
	s := newServer(t)

	_, err := s.run(t, "bob", []byte("short"), "submit", "--precheck", "light")
	var rejected *sealedlog.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, sealedlog.ReasonTooShort, rejected.Reason)

	_, err = s.run(t, "bob", sealed(80), "submit", "--precheck", "bogus")
	assert.Error(t, err)
}

func TestTopics(t *testing.T) {
	s := newServer(t)
	for _, topic := range []string{"b", "a", ""} {
		_, err := s.run(t, "bob", sealed(100), "submit", "--topic", topic)
		require.NoError(t, err)
	}

	out, err := s.run(t, "bob", nil, "-o", "json", "topics", "bob")
	require.NoError(t, err)
	var topics []string
	require.NoError(t, json.Unmarshal([]byte(out), &topics))
	assert.Equal(t, []string{"", "a", "b"}, topics)
}

func TestKeyAndAdmin(t *testing.T) {
	s := newServer(t)

	out, err := s.run(t, "bob", nil, "-o", "yaml", "key", "get")
	require.NoError(t, err)
	var record map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &record))
	assert.Equal(t, "pk-1", record["key_material"])
	assert.Equal(t, "alice", record["administrator"])

	_, err = s.run(t, "bob", nil, "key", "set", "pk-bob")
	assert.ErrorIs(t, err, sealedlog.ErrUnauthorized)

	_, err = s.run(t, "alice", []byte("pk-2\n"), "key", "set", "--file", "-")
	require.NoError(t, err)

	_, err = s.run(t, "alice", nil, "key", "set")
	assert.Error(t, err)

	_, err = s.run(t, "alice", nil, "admin", "transfer", "bob")
	require.NoError(t, err)

	_, err = s.run(t, "alice", nil, "key", "set", "pk-alice")
	assert.ErrorIs(t, err, sealedlog.ErrUnauthorized)

	out, err = s.run(t, "bob", nil, "key", "get")
	require.NoError(t, err)
	assert.Contains(t, out, "administrator: bob")
	assert.Contains(t, out, "pk-2")
}

func TestClassifyLocal(t *testing.T) {
	s := newServer(t)

	out, err := s.run(t, "", []byte(strings.Repeat("a", 50)), "-o", "json", "classify", "--profile", "full")
	require.NoError(t, err)
	var res classifyResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Accepted)
	assert.Equal(t, sealedlog.ReasonLowEntropy, res.Reason)
	assert.Equal(t, 50, res.Size)

	out, err = s.run(t, "", sealed(100), "classify", "--profile", "none")
	require.NoError(t, err)
	assert.Contains(t, out, "accepted")
}

func TestClassifyRemote(t *testing.T) {
	s := newServer(t)

	out, err := s.run(t, "", sealed(100), "-o", "json", "classify", "--remote")
	require.NoError(t, err)
	var res classifyResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Accepted)
	assert.Equal(t, sealedlog.ReasonLooksEncrypted, res.Reason)
	assert.Equal(t, sealedlog.ProfileFull, res.Profile)
}

func TestDeployWritesArtifact(t *testing.T) {
	s := newServer(t)
	dest := filepath.Join(t.TempDir(), "out", "deployment.yaml")

	out, err := s.run(t, "", nil, "deploy", "--out", dest)
	require.NoError(t, err)
	assert.Contains(t, out, dest)

	d, err := LoadDeployment(dest)
	require.NoError(t, err)
	assert.Equal(t, s.url, d.Server)
	assert.Equal(t, sealedlog.Identity("alice"), d.Instance.Initializer)
	assert.Equal(t, sealedlog.ProfileFull, d.Instance.Profile)
	assert.NotEmpty(t, d.Instance.InstanceID)
	assert.Equal(t, "alice", d.Administrator)
	assert.Equal(t, "pk-1", d.KeyMaterial)
}

func TestUnknownOutputFormat(t *testing.T) {
	s := newServer(t)
	_, err := s.run(t, "", nil, "-o", "xml", "topics", "bob")
	assert.Error(t, err)
}

func TestYAMLKeepsJSONFieldNames(t *testing.T) {
	var buf bytes.Buffer
	err := render(&buf, outputYAML, api.CountResponse{Count: 3}, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "count: 3")
}

func TestScan(t *testing.T) {
	s := newServer(t)
	_, err := s.run(t, "bob", sealed(100), "submit", "-t", "inbox")
	require.NoError(t, err)
	_, err = s.run(t, "bob", sealed(120), "submit", "-t", "outbox")
	require.NoError(t, err)

	out, err := s.run(t, "", nil, "scan", "bob", "carol")
	require.NoError(t, err)
	assert.Contains(t, out, "scanned 2 messages: 2 ok, 0 failed")

	out, err = s.run(t, "", nil, "-o", "json", "scan", "bob", "--topic", "inbox", "--profile", "light")
	require.NoError(t, err)
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.EqualValues(t, 1, result["total_found"])
}
