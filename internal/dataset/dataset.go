// Package dataset holds the compiled-in description of the Victorian era
// authorship attribution dataset: where the upstream archive lives, which
// files constitute a usable local copy, and which extraction byproducts
// are safe to prune.
package dataset

import (
	"os"
	"path/filepath"

	"github.com/emirpasic/gods/maps/linkedhashmap"
)

const (
	// URL is the upstream UCI archive for the dataset.
	URL = "https://archive.ics.uci.edu/static/public/454/victorian+era+authorship+attribution.zip"
	// ArchiveName is the filename the downloaded archive is cached under.
	ArchiveName = "victorian_era_authorship_attribution.zip"
	// NestedArchiveName and NestedFolderName describe the upstream
	// archive's internal layout. They are layout assumptions, not
	// structure to be inferred at runtime.
	NestedArchiveName = "dataset.zip"
	NestedFolderName  = "dataset"

	DataDirName      = "data"
	ArtifactsDirName = "artifacts"
)

// RequiredFiles is the minimal set of files that must exist under the data
// directory for the dataset to count as available. Order is report order.
var RequiredFiles = []string{
	"Data Description.pdf",
	"Gungor_2018_VictorianAuthorAttribution_data-train.csv",
	"Gungor_2018_VictorianAuthorAttribution_readme.txt",
}

// RedundantItems are extraction byproducts that are safe to delete once the
// required files are staged. Removal follows this order.
var RedundantItems = []string{
	"Gungor_2018_VictorianAuthorAttribution_data.csv",
	"Gungor_2018_VictorianAuthorAttribution_data-test.csv",
	NestedArchiveName,
	NestedFolderName,
}

// ManualCleanupHints maps project-root-relative paths to reasons a user
// might delete them by hand. Iteration order is insertion order.
func ManualCleanupHints() *linkedhashmap.Map {
	hints := linkedhashmap.New()
	hints.Put(filepath.Join(ArtifactsDirName, ArchiveName), "Cached full archive; delete if you need additional space.")
	hints.Put(filepath.Join(DataDirName, NestedFolderName), "Nested directory of duplicate CSVs; safe to remove after an ensure run.")
	hints.Put(filepath.Join(DataDirName, NestedArchiveName), "Nested archive; removed automatically but can be deleted manually if present.")
	hints.Put(filepath.Join(DataDirName, "Gungor_2018_VictorianAuthorAttribution_data.csv"), "Full corpus not required for training.")
	return hints
}

// Missing returns the required files absent from dataDir, in RequiredFiles
// order. Pure read of filesystem state.
func Missing(dataDir string) []string {
	var missing []string
	for _, name := range RequiredFiles {
		if _, err := os.Stat(filepath.Join(dataDir, name)); err != nil {
			missing = append(missing, name)
		}
	}
	return missing
}

// Present returns the required files currently found in dataDir, in
// RequiredFiles order.
func Present(dataDir string) []string {
	var present []string
	for _, name := range RequiredFiles {
		if _, err := os.Stat(filepath.Join(dataDir, name)); err == nil {
			present = append(present, name)
		}
	}
	return present
}
