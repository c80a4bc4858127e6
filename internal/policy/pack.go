package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DisabledPrefix marks a pack file that is listed but not merged.
const DisabledPrefix = "_"

// Pack is one YAML file in the packs directory. Its lists are unioned into
// the base policy.
type Pack struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	PackVersion string   `yaml:"version"`
	Author      string   `yaml:"author"`
	Terms       Terms    `yaml:"terms"`
	BlockedApps []string `yaml:"blocked_apps"`
}

// TermCount is the number of terms the pack contributes across all lists.
func (p *Pack) TermCount() int {
	return len(p.Terms.Destructive) + len(p.Terms.Sensitive) + len(p.Terms.Block) + len(p.Terms.Confirm)
}

// PackInfo describes a pack file for listing. Err is set when the file
// could not be parsed; such packs are never merged.
type PackInfo struct {
	Name        string
	File        string
	Description string
	Version     string
	Author      string
	Enabled     bool
	Path        string
	TermCount   int
	BlockedApps int
	Err         error
}

// LoadPacks merges every enabled pack in packsDir into a copy of base. A
// missing directory returns base itself.
func LoadPacks(packsDir string, base *Policy) (*Policy, []PackInfo, error) {
	entries, err := os.ReadDir(packsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil, nil
		}
		return nil, nil, err
	}

	merged := base.Clone()
	var infos []PackInfo
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		info, pack := inspectPack(filepath.Join(packsDir, entry.Name()))
		infos = append(infos, info)
		if info.Enabled && pack != nil {
			merged.merge(pack)
		}
	}
	sort.SliceStable(infos, func(i, j int) bool { return infos[i].File < infos[j].File })
	return merged, infos, nil
}

// PackFileName strips the extension and the disabled prefix from a pack
// file name.
func PackFileName(file string) (name string, enabled bool) {
	name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	if strings.HasPrefix(name, DisabledPrefix) {
		return strings.TrimPrefix(name, DisabledPrefix), false
	}
	return name, true
}

// ReadPack parses a single pack file.
func ReadPack(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parse pack %s: %w", filepath.Base(path), err)
	}
	return &pack, nil
}

func inspectPack(path string) (PackInfo, *Pack) {
	file, enabled := PackFileName(path)
	info := PackInfo{Name: file, File: file, Enabled: enabled, Path: path}

	pack, err := ReadPack(path)
	if err != nil {
		info.Err = err
		return info, nil
	}
	if pack.Name != "" {
		info.Name = pack.Name
	}
	info.Description = pack.Description
	info.Version = pack.PackVersion
	info.Author = pack.Author
	info.TermCount = pack.TermCount()
	info.BlockedApps = len(pack.BlockedApps)
	return info, pack
}

// Clone returns a deep copy of p.
func (p *Policy) Clone() *Policy {
	return &Policy{
		Version: p.Version,
		Terms: Terms{
			Destructive: append([]string(nil), p.Terms.Destructive...),
			Sensitive:   append([]string(nil), p.Terms.Sensitive...),
			Block:       append([]string(nil), p.Terms.Block...),
			Confirm:     append([]string(nil), p.Terms.Confirm...),
		},
		BlockedApps: append([]string(nil), p.BlockedApps...),
	}
}

func (p *Policy) merge(pack *Pack) {
	p.Terms.Destructive = union(p.Terms.Destructive, pack.Terms.Destructive)
	p.Terms.Sensitive = union(p.Terms.Sensitive, pack.Terms.Sensitive)
	p.Terms.Block = union(p.Terms.Block, pack.Terms.Block)
	p.Terms.Confirm = union(p.Terms.Confirm, pack.Terms.Confirm)
	p.BlockedApps = union(p.BlockedApps, pack.BlockedApps)
}

// union appends the entries of src missing from dst, comparing
// case-insensitively and skipping blanks.
func union(dst, src []string) []string {
	seen := make(map[string]struct{}, len(dst)+len(src))
	for _, s := range dst {
		seen[strings.ToLower(s)] = struct{}{}
	}
	for _, s := range src {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		dst = append(dst, s)
	}
	return dst
}

func isYAMLFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
