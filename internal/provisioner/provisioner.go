// Package provisioner sequences the idempotent steps that make the dataset
// available locally: presence check, archive acquisition, two-stage
// extraction, redundant-item cleanup, and manual-cleanup reporting.
package provisioner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/emirpasic/gods/maps/linkedhashmap"
	"primamateria.systems/alembic/internal/archive"
	"primamateria.systems/alembic/internal/dataset"
	"primamateria.systems/alembic/internal/fetch"
)

// ErrIncompleteDataset means acquisition and extraction finished but
// required files are still missing. Rerunning will not help; the archive
// is corrupt, wrong, or its upstream layout changed.
var ErrIncompleteDataset = errors.New("dataset incomplete after extraction")

type Provisioner struct {
	root         string
	dataDir      string
	artifactsDir string
	cachePath    string
	acquirer     *fetch.Acquirer
	hints        *linkedhashmap.Map
	out          io.Writer
}

// EnsureOptions mirror the CLI flags.
type EnsureOptions struct {
	ForceDownload bool
	ArchivePath   string
	DryRun        bool
	KeepArchive   bool
}

func NewProvisioner(c *Config) (*Provisioner, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	acquirer, err := fetch.NewAcquirer(c.URL, c.CachePath(), time.Duration(c.Timeout)*time.Second)
	if err != nil {
		return nil, err
	}
	return &Provisioner{
		root:         c.Root,
		dataDir:      c.DataDir(),
		artifactsDir: c.ArtifactsDir(),
		cachePath:    c.CachePath(),
		acquirer:     acquirer,
		hints:        dataset.ManualCleanupHints(),
		out:          os.Stdout,
	}, nil
}

// Ensure makes the required dataset files present under the data
// directory, acquiring and extracting the archive when needed. Every step
// is idempotent; rerunning after any failure is safe. Dry-run reports what
// would happen and mutates nothing.
func (p *Provisioner) Ensure(ctx context.Context, opts EnsureOptions) error {
	missing := dataset.Missing(p.dataDir)
	if len(missing) == 0 && !opts.ForceDownload {
		log.Info("all required dataset files are present, running cleanup checks")
		if err := p.Cleanup(opts.DryRun); err != nil {
			return err
		}
		p.ReportManualCleanup()
		return nil
	}

	if opts.DryRun {
		if opts.ForceDownload {
			fmt.Fprintln(p.out, "Force download requested.")
		} else {
			fmt.Fprintln(p.out, "Missing files detected:")
		}
		for _, name := range missing {
			fmt.Fprintf(p.out, "  - %v\n", name)
		}
		if err := p.Cleanup(true); err != nil {
			return err
		}
		p.ReportManualCleanup()
		return nil
	}

	if err := os.MkdirAll(p.dataDir, 0o755); err != nil {
		return fmt.Errorf("error creating data directory: %w", err)
	}

	acquired, err := p.acquirer.Acquire(ctx, opts.ArchivePath, opts.ForceDownload)
	if err != nil {
		return err
	}
	if err := archive.ExtractOuter(ctx, acquired.Path, p.dataDir); err != nil {
		return err
	}
	if err := archive.ExtractNested(ctx, p.dataDir, dataset.NestedArchiveName, dataset.NestedFolderName, dataset.RequiredFiles); err != nil {
		return err
	}
	if err := p.Cleanup(false); err != nil {
		return err
	}

	if remaining := dataset.Missing(p.dataDir); len(remaining) > 0 {
		return fmt.Errorf("%w: %v", ErrIncompleteDataset, strings.Join(remaining, ", "))
	}

	if !acquired.UserSupplied && !opts.KeepArchive {
		if _, err := os.Stat(acquired.Path); err == nil {
			log.Infof("removing cached archive to save space -> %v", acquired.Path)
			if err := os.Remove(acquired.Path); err != nil {
				return fmt.Errorf("error removing cached archive: %w", err)
			}
		}
	}

	fmt.Fprintln(p.out, "Dataset is ready.")
	p.ReportManualCleanup()
	return nil
}

// Cleanup removes redundant extraction byproducts from the data directory
// in the fixed list order. Absent items are skipped silently. In dry-run
// mode actions are reported but nothing is deleted.
func (p *Provisioner) Cleanup(dryRun bool) error {
	for _, name := range dataset.RedundantItems {
		target := filepath.Join(p.dataDir, name)
		info, err := os.Lstat(target)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			return fmt.Errorf("error checking redundant item %v: %w", name, err)
		}
		if dryRun {
			fmt.Fprintf(p.out, "Would remove redundant item -> %v\n", target)
			continue
		}
		fmt.Fprintf(p.out, "Removing redundant item -> %v\n", target)
		if info.IsDir() {
			err = os.RemoveAll(target)
		} else {
			err = os.Remove(target)
		}
		if err != nil {
			return fmt.Errorf("error removing redundant item %v: %w", name, err)
		}
	}
	return nil
}

// ReportManualCleanup prints optional deletion candidates that exist under
// the project root. Purely informational; the header only appears when at
// least one candidate is present.
func (p *Provisioner) ReportManualCleanup() {
	header := false
	it := p.hints.Iterator()
	for it.Next() {
		rel := it.Key().(string)
		reason := it.Value().(string)
		if _, err := os.Stat(filepath.Join(p.root, rel)); err != nil {
			continue
		}
		if !header {
			fmt.Fprintln(p.out, "Optional clean-up targets (safe to delete manually):")
			header = true
		}
		fmt.Fprintf(p.out, "  - %v :: %v\n", filepath.ToSlash(rel), reason)
	}
}

// Status prints which required files are present and which are missing.
func (p *Provisioner) Status() {
	present := dataset.Present(p.dataDir)
	missing := dataset.Missing(p.dataDir)
	for _, name := range present {
		fmt.Fprintf(p.out, "present: %v\n", name)
	}
	for _, name := range missing {
		fmt.Fprintf(p.out, "missing: %v\n", name)
	}
	if len(missing) == 0 {
		fmt.Fprintln(p.out, "Dataset is ready.")
	}
}
