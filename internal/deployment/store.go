package deployment

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store keeps deployment records as JSON files in one directory:
//
//	<kind>-deployment-<network>-<chainId>-<timestamp>.json   immutable snapshot
//	<kind>-deployment-latest.json                            copy of the newest snapshot of that kind
//
// The latest file is written for tools that read it directly. Resolution
// never trusts it blindly: it scans the snapshots and picks the newest one
// for the requested chain.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string { return s.dir }

func snapshotName(r Record) string {
	name := r.Network.Name
	if name == "" {
		name = "unknown"
	}
	ts := strings.NewReplacer(":", "-", ".", "-").Replace(r.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"))
	return fmt.Sprintf("%s-deployment-%s-%d-%s.json", r.DeploymentMethod, name, r.Network.ChainID, ts)
}

func latestName(kind Kind) string {
	return fmt.Sprintf("%s-deployment-latest.json", kind)
}

// Save writes r as a new snapshot and refreshes the latest copy of its kind.
// An existing snapshot is never overwritten.
func (s *Store) Save(r Record) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create deployments dir: %w", err)
	}
	blob, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, snapshotName(r))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if _, err := f.Write(blob); err != nil {
		f.Close()
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	if err := writeAtomic(filepath.Join(s.dir, latestName(r.DeploymentMethod)), blob); err != nil {
		return "", fmt.Errorf("write latest: %w", err)
	}
	return path, nil
}

func writeAtomic(path string, blob []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Records returns every record of kind, newest first. The latest copy is
// only consulted when no snapshot exists, which covers directories written
// by older tooling that kept nothing else.
func (s *Store) Records(kind Kind) ([]Record, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, string(kind)+"-deployment-*.json"))
	if err != nil {
		return nil, err
	}
	latest := filepath.Join(s.dir, latestName(kind))

	var out []Record
	for _, p := range paths {
		if p == latest {
			continue
		}
		r, err := readRecord(p)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		r, err := readRecord(latest)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, nil
		case err != nil:
			return nil, err
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

func readRecord(path string) (Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return Record{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return r, nil
}
