package cache

// FormatVersion stamps snapshots written by this package.
const FormatVersion = "1"

// SnapFile represents a single file entry in a snapshot. Hash is the
// lowercase blake3 hex of the contents; Records is the LinesKey of the
// file's line records and names their blob. Lines is the number of lines as
// split by the markup pipeline.
type SnapFile struct {
	Path    string `json:"path"`
	Hash    string `json:"hash"`
	Records string `json:"records,omitempty"`
	Lines   int    `json:"lines"`
}

// Snapshot captures the indexed state of a tree after one run.
type Snapshot struct {
	Module        string     `json:"module"`
	Created       string     `json:"created"` // RFC3339, UTC
	RunID         string     `json:"run_id,omitempty"`
	BundleID      string     `json:"bundle_id,omitempty"`
	FormatVersion string     `json:"formatVersion,omitempty"`
	Files         []SnapFile `json:"files"`
}

// Change is a file whose path survived but whose content or line records
// did not. Records change on their own when a sidecar or the set of enabled
// producers changes.
type Change struct {
	Path          string `json:"path"`
	HashBefore    string `json:"hashBefore"`
	HashAfter     string `json:"hashAfter"`
	RecordsBefore string `json:"recordsBefore,omitempty"`
	RecordsAfter  string `json:"recordsAfter,omitempty"`
}

// Rename is a file moved without a content change.
type Rename struct {
	From string `json:"from"`
	To   string `json:"to"`
	Hash string `json:"hash"`
}

// Delta describes the changes from a previous snapshot to the current one.
// Renamed entries are one-to-one pairings for the same content hash and are
// not repeated in Added or Removed.
type Delta struct {
	Added   []SnapFile `json:"added"`
	Removed []SnapFile `json:"removed"`
	Renamed []Rename   `json:"renamed"`
	Changed []Change   `json:"changed"`
}

// Empty reports whether nothing changed.
func (d Delta) Empty() bool {
	return len(d.Added)+len(d.Removed)+len(d.Renamed)+len(d.Changed) == 0
}
