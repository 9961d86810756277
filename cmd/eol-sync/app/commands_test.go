package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgsync "github.com/stacklok/eol-sync/internal/sync"
)

// fakeCatalog serves the catalog endpoints used by a pass and records patches
type fakeCatalog struct {
	mu       sync.Mutex
	patches  map[string]map[string]any
	failWith map[string]int
}

func newFakeCatalog(t *testing.T) (*fakeCatalog, *httptest.Server) {
	t.Helper()
	fc := &fakeCatalog{patches: map[string]map[string]any{}, failWith: map[string]int{}}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/access_token", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"accessToken":"tok","expiresIn":3600,"tokenType":"Bearer"}`))
	})
	mux.HandleFunc("GET /blueprints/framework/entities", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"entities":[
			{"identifier":"f1","properties":{"state":"EOL"}},
			{"identifier":"f2","properties":{"state":"Active"}}
		]}`))
	})
	mux.HandleFunc("GET /blueprints/service/entities", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"entities":[
			{"identifier":"s1","relations":{"used_frameworks":["f1","f2"]}},
			{"identifier":"s2","relations":{"used_frameworks":["f1","f1"]}},
			{"identifier":"s3"}
		]}`))
	})
	mux.HandleFunc("PATCH /blueprints/service/entities/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		fc.mu.Lock()
		defer fc.mu.Unlock()
		if code, ok := fc.failWith[id]; ok {
			w.WriteHeader(code)
			return
		}
		var body struct {
			Properties map[string]any `json:"properties"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fc.patches[id] = body.Properties
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return fc, server
}

func writeTestConfig(t *testing.T, baseURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `catalog:
  apiBaseUrl: ` + baseURL + `
  clientId: test-client
  clientSecret: test-secret
  serviceBlueprint: service
  frameworkBlueprint: framework
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "version", "--format", "json")
	require.NoError(t, err)

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "release")

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "eol-sync ")
}

func TestRunCommand(t *testing.T) {
	t.Parallel()

	t.Run("updates every service", func(t *testing.T) {
		t.Parallel()
		fc, server := newFakeCatalog(t)
		dataDir := t.TempDir()

		out, err := execute(t, "run", "--config", writeTestConfig(t, server.URL),
			"--data-dir", dataDir, "--format", "json")
		require.NoError(t, err)

		var summary runSummary
		require.NoError(t, json.Unmarshal([]byte(out), &summary))
		assert.True(t, summary.Success)
		assert.Equal(t, 3, summary.Updated)
		assert.Equal(t, 3, summary.EOLTotal)

		fc.mu.Lock()
		defer fc.mu.Unlock()
		assert.Equal(t, map[string]map[string]any{
			"s1": {"number_of_eol_packages": float64(1)},
			"s2": {"number_of_eol_packages": float64(2)},
			"s3": {"number_of_eol_packages": float64(0)},
		}, fc.patches)

		assert.FileExists(t, filepath.Join(dataDir, "status.json"))
	})

	t.Run("dry run patches nothing", func(t *testing.T) {
		t.Parallel()
		fc, server := newFakeCatalog(t)

		out, err := execute(t, "run", "--config", writeTestConfig(t, server.URL), "--dry-run")
		require.NoError(t, err)
		assert.Contains(t, out, "(dry run)")
		assert.Contains(t, out, "0 updated")

		fc.mu.Lock()
		defer fc.mu.Unlock()
		assert.Empty(t, fc.patches)
	})

	t.Run("failed update exits with error", func(t *testing.T) {
		t.Parallel()
		fc, server := newFakeCatalog(t)
		fc.failWith["s1"] = http.StatusNotFound

		out, err := execute(t, "run", "--config", writeTestConfig(t, server.URL), "--format", "json")
		require.Error(t, err)

		var syncErr *pkgsync.Error
		require.True(t, errors.As(err, &syncErr))
		assert.Equal(t, pkgsync.StagePersisting, syncErr.Stage)

		var summary runSummary
		require.NoError(t, json.Unmarshal([]byte(out), &summary))
		assert.False(t, summary.Success)
		assert.Equal(t, "s1", summary.Service)
		assert.Equal(t, string(pkgsync.StagePersisting), summary.Stage)

		fc.mu.Lock()
		defer fc.mu.Unlock()
		assert.Empty(t, fc.patches)
	})

	t.Run("continue policy attempts every service", func(t *testing.T) {
		t.Parallel()
		fc, server := newFakeCatalog(t)
		fc.failWith["s1"] = http.StatusUnprocessableEntity

		_, err := execute(t, "run", "--config", writeTestConfig(t, server.URL), "--failure-policy", "continue")
		require.Error(t, err)

		fc.mu.Lock()
		defer fc.mu.Unlock()
		assert.Len(t, fc.patches, 2)
	})

	t.Run("invalid format", func(t *testing.T) {
		t.Parallel()
		_, err := execute(t, "run", "--format", "yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported format")
	})

	t.Run("missing config file", func(t *testing.T) {
		t.Parallel()
		_, err := execute(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load configuration")
	})
}

func TestWriteRunSummary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		result   *pkgsync.Result
		syncErr  *pkgsync.Error
		contains []string
	}{
		{
			name: "success",
			result: &pkgsync.Result{
				PassID:       "p1",
				Duration:     1500 * time.Millisecond,
				UpdatedCount: 2,
				EOLTotal:     3,
				Services: []pkgsync.ServiceResult{
					{ServiceID: "s1", EOLCount: 1, Updated: true},
					{ServiceID: "s2", EOLCount: 2, Updated: true},
				},
			},
			contains: []string{"Sync pass p1 completed in 1.5s: 2 services, 2 updated, 3 EOL references", "s2\t2"},
		},
		{
			name: "failure",
			syncErr: &pkgsync.Error{
				PassID:  "p2",
				Stage:   pkgsync.StageAuthenticating,
				Message: "failed to authenticate with the catalog",
			},
			contains: []string{"Sync pass p2 failed in stage Authenticating: failed to authenticate with the catalog"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			require.NoError(t, writeRunSummary(&buf, "text", newRunSummary(tt.result, tt.syncErr)))
			for _, want := range tt.contains {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}
