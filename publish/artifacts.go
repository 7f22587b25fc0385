package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Artifact is the subset of a hardhat compilation artifact needed to deploy.
type Artifact struct {
	ContractName string `json:"contractName"`
	SourceName   string `json:"sourceName"`
	Bytecode     string `json:"bytecode"`
}

// Artifacts indexes hardhat artifact files by contract name. Roots are
// searched in order and the first artifact for a name wins, so local build
// output shadows vendored packages.
type Artifacts struct {
	byName map[string]string
}

func LoadArtifacts(roots ...string) (*Artifacts, error) {
	a := &Artifacts{byName: map[string]string{}}
	for _, root := range roots {
		if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, ".json") || strings.HasSuffix(path, ".dbg.json") {
				return nil
			}
			name := strings.TrimSuffix(d.Name(), ".json")
			if _, seen := a.byName[name]; !seen {
				a.byName[name] = path
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan artifacts %s: %w", root, err)
		}
	}
	return a, nil
}

func (a *Artifacts) Load(name string) (Artifact, error) {
	path, ok := a.byName[name]
	if !ok {
		return Artifact{}, fmt.Errorf("artifact %s not found", name)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("read artifact %s: %w", name, err)
	}
	var art Artifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return Artifact{}, fmt.Errorf("parse artifact %s: %w", path, err)
	}
	if art.ContractName != "" && art.ContractName != name {
		return Artifact{}, fmt.Errorf("artifact %s declares contract %s", path, art.ContractName)
	}
	return art, nil
}

// Bytecode returns the creation bytecode of name. Abstract contracts and
// interfaces have none and are rejected.
func (a *Artifacts) Bytecode(name string) ([]byte, error) {
	art, err := a.Load(name)
	if err != nil {
		return nil, err
	}
	code := strings.TrimPrefix(art.Bytecode, "0x")
	if code == "" {
		return nil, fmt.Errorf("artifact %s has no bytecode", name)
	}
	if strings.Contains(code, "__$") {
		return nil, fmt.Errorf("artifact %s has unlinked libraries", name)
	}
	b, err := decodeHex(code)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", name, err)
	}
	return b, nil
}
