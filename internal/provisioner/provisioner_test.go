package provisioner

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mholt/archiver/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"primamateria.systems/alembic/internal/dataset"
)

func buildZip(t *testing.T, dest string, files map[string][]byte) {
	t.Helper()
	srcDir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(srcDir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, content, 0o644))
	}
	members, err := archiver.FilesFromDisk(nil, map[string]string{
		srcDir + string(os.PathSeparator): "",
	})
	require.NoError(t, err)
	out, err := os.Create(dest)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, out.Close())
	}()
	require.NoError(t, archiver.Zip{}.Archive(context.Background(), out, members))
}

// buildFixtureArchive replicates the upstream archive layout: required
// files at the root next to a nested dataset.zip whose dataset/ folder
// carries the training data.
func buildFixtureArchive(t *testing.T, dest string) {
	t.Helper()
	nested := filepath.Join(t.TempDir(), dataset.NestedArchiveName)
	buildZip(t, nested, map[string][]byte{
		dataset.NestedFolderName + "/" + dataset.RequiredFiles[1]:                      []byte("train-data"),
		dataset.NestedFolderName + "/Gungor_2018_VictorianAuthorAttribution_data.csv": []byte("full-corpus"),
	})
	nestedBytes, err := os.ReadFile(nested)
	require.NoError(t, err)
	buildZip(t, dest, map[string][]byte{
		dataset.RequiredFiles[0]:                                []byte("description"),
		dataset.RequiredFiles[2]:                                []byte("readme"),
		"Gungor_2018_VictorianAuthorAttribution_data-test.csv": []byte("test-data"),
		dataset.NestedArchiveName:                               nestedBytes,
	})
}

func newTestProvisioner(t *testing.T, root, url string) *Provisioner {
	t.Helper()
	p, err := NewProvisioner(&Config{Root: root, URL: url, Timeout: 5})
	require.NoError(t, err)
	return p
}

func assertComplete(t *testing.T, dataDir string) {
	t.Helper()
	assert.Empty(t, dataset.Missing(dataDir))
	for _, name := range dataset.RedundantItems {
		assert.NoFileExists(t, filepath.Join(dataDir, name))
		assert.NoDirExists(t, filepath.Join(dataDir, name))
	}
}

func TestEnsureWithArchivePath(t *testing.T) {
	fixture := filepath.Join(t.TempDir(), "fixture.zip")
	buildFixtureArchive(t, fixture)
	root := t.TempDir()
	p := newTestProvisioner(t, root, "http://unreachable.invalid")

	err := p.Ensure(context.Background(), EnsureOptions{ArchivePath: fixture})
	require.NoError(t, err)

	assertComplete(t, filepath.Join(root, dataset.DataDirName))
	// the user-supplied archive is never deleted
	assert.FileExists(t, fixture)
}

func TestEnsureIdempotent(t *testing.T) {
	fixture := filepath.Join(t.TempDir(), "fixture.zip")
	buildFixtureArchive(t, fixture)
	root := t.TempDir()
	p := newTestProvisioner(t, root, "http://unreachable.invalid")

	require.NoError(t, p.Ensure(context.Background(), EnsureOptions{ArchivePath: fixture}))
	// second run takes the satisfied path and must not need the archive
	require.NoError(t, p.Ensure(context.Background(), EnsureOptions{}))

	assertComplete(t, filepath.Join(root, dataset.DataDirName))
}

func TestEnsureDryRunMutatesNothing(t *testing.T) {
	root := t.TempDir()
	p := newTestProvisioner(t, root, "http://unreachable.invalid")

	require.NoError(t, p.Ensure(context.Background(), EnsureOptions{DryRun: true}))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEnsureDryRunWithForce(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, dataset.DataDirName)
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	for _, name := range dataset.RequiredFiles {
		require.NoError(t, os.WriteFile(filepath.Join(dataDir, name), []byte("x"), 0o644))
	}
	p := newTestProvisioner(t, root, "http://unreachable.invalid")

	// force plus dry-run must still short-circuit before any download
	require.NoError(t, p.Ensure(context.Background(), EnsureOptions{ForceDownload: true, DryRun: true}))
	assert.Empty(t, dataset.Missing(dataDir))
}

func TestEnsureDownloadRemovesCache(t *testing.T) {
	fixture := filepath.Join(t.TempDir(), "fixture.zip")
	buildFixtureArchive(t, fixture)
	payload, err := os.ReadFile(fixture)
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	root := t.TempDir()
	p := newTestProvisioner(t, root, srv.URL)
	require.NoError(t, p.Ensure(context.Background(), EnsureOptions{}))

	assertComplete(t, filepath.Join(root, dataset.DataDirName))
	assert.NoFileExists(t, p.cachePath)
}

func TestEnsureDownloadKeepArchive(t *testing.T) {
	fixture := filepath.Join(t.TempDir(), "fixture.zip")
	buildFixtureArchive(t, fixture)
	payload, err := os.ReadFile(fixture)
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	root := t.TempDir()
	p := newTestProvisioner(t, root, srv.URL)
	require.NoError(t, p.Ensure(context.Background(), EnsureOptions{KeepArchive: true}))

	assertComplete(t, filepath.Join(root, dataset.DataDirName))
	assert.FileExists(t, p.cachePath)
}

func TestEnsureDownloadFailureSurfaces(t *testing.T) {
	root := t.TempDir()
	p := newTestProvisioner(t, root, "http://unreachable.invalid")

	err := p.Ensure(context.Background(), EnsureOptions{ForceDownload: true})
	assert.Error(t, err)
	assert.NoFileExists(t, p.cachePath)
}

func TestEnsureIncompleteArchive(t *testing.T) {
	// archive missing the training data entirely
	fixture := filepath.Join(t.TempDir(), "fixture.zip")
	buildZip(t, fixture, map[string][]byte{
		dataset.RequiredFiles[0]: []byte("description"),
		dataset.RequiredFiles[2]: []byte("readme"),
	})
	root := t.TempDir()
	p := newTestProvisioner(t, root, "http://unreachable.invalid")

	err := p.Ensure(context.Background(), EnsureOptions{ArchivePath: fixture})
	assert.ErrorIs(t, err, ErrIncompleteDataset)
}

func TestEnsureMissingArchivePath(t *testing.T) {
	root := t.TempDir()
	p := newTestProvisioner(t, root, "http://unreachable.invalid")

	err := p.Ensure(context.Background(), EnsureOptions{ArchivePath: filepath.Join(root, "nope.zip")})
	assert.Error(t, err)
}

func TestCleanupRemovesRedundantItems(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, dataset.DataDirName)
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	for _, name := range dataset.RequiredFiles {
		require.NoError(t, os.WriteFile(filepath.Join(dataDir, name), []byte("x"), 0o644))
	}
	for _, name := range dataset.RedundantItems {
		if name == dataset.NestedFolderName {
			require.NoError(t, os.MkdirAll(filepath.Join(dataDir, name, "inner"), 0o755))
		} else {
			require.NoError(t, os.WriteFile(filepath.Join(dataDir, name), []byte("x"), 0o644))
		}
	}
	p := newTestProvisioner(t, root, "http://unreachable.invalid")

	require.NoError(t, p.Cleanup(false))
	assertComplete(t, dataDir)
}

func TestReportManualCleanupNothingApplies(t *testing.T) {
	root := t.TempDir()
	p := newTestProvisioner(t, root, "http://unreachable.invalid")
	var buf bytes.Buffer
	p.out = &buf

	p.ReportManualCleanup()

	// no header when no hint target exists
	assert.Empty(t, buf.String())
}

func TestReportManualCleanupListsTargets(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, dataset.ArtifactsDirName), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, dataset.ArtifactsDirName, dataset.ArchiveName), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, dataset.DataDirName, dataset.NestedFolderName), 0o755))
	p := newTestProvisioner(t, root, "http://unreachable.invalid")
	var buf bytes.Buffer
	p.out = &buf

	p.ReportManualCleanup()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Optional clean-up targets (safe to delete manually):", lines[0])
	// hint-map insertion order: cached archive before nested folder
	assert.Contains(t, lines[1], dataset.ArtifactsDirName+"/"+dataset.ArchiveName)
	assert.Contains(t, lines[1], " :: ")
	assert.Contains(t, lines[2], dataset.DataDirName+"/"+dataset.NestedFolderName)
	assert.Contains(t, lines[2], " :: ")
}

func TestStatusPartial(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, dataset.DataDirName)
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, dataset.RequiredFiles[0]), []byte("x"), 0o644))
	p := newTestProvisioner(t, root, "http://unreachable.invalid")
	var buf bytes.Buffer
	p.out = &buf

	p.Status()

	out := buf.String()
	assert.Contains(t, out, "present: "+dataset.RequiredFiles[0])
	assert.Contains(t, out, "missing: "+dataset.RequiredFiles[1])
	assert.Contains(t, out, "missing: "+dataset.RequiredFiles[2])
	assert.NotContains(t, out, "Dataset is ready.")
}

func TestStatusSatisfied(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, dataset.DataDirName)
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	for _, name := range dataset.RequiredFiles {
		require.NoError(t, os.WriteFile(filepath.Join(dataDir, name), []byte("x"), 0o644))
	}
	p := newTestProvisioner(t, root, "http://unreachable.invalid")
	var buf bytes.Buffer
	p.out = &buf

	p.Status()

	out := buf.String()
	for _, name := range dataset.RequiredFiles {
		assert.Contains(t, out, "present: "+name)
	}
	assert.NotContains(t, out, "missing:")
	assert.Contains(t, out, "Dataset is ready.")
}

func TestCleanupDryRunDeletesNothing(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, dataset.DataDirName)
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	for _, name := range dataset.RedundantItems {
		if name == dataset.NestedFolderName {
			require.NoError(t, os.MkdirAll(filepath.Join(dataDir, name), 0o755))
		} else {
			require.NoError(t, os.WriteFile(filepath.Join(dataDir, name), []byte("x"), 0o644))
		}
	}
	p := newTestProvisioner(t, root, "http://unreachable.invalid")

	require.NoError(t, p.Cleanup(true))
	for _, name := range dataset.RedundantItems {
		_, err := os.Lstat(filepath.Join(dataDir, name))
		assert.NoError(t, err)
	}
}
