package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPacks_EmptyDir(t *testing.T) {
	dir := t.TempDir()
	base := DefaultPolicy()

	result, infos, err := LoadPacks(dir, base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("expected 0 pack infos, got %d", len(infos))
	}
	if len(result.Terms.Block) != len(base.Terms.Block) {
		t.Errorf("expected %d block terms, got %d", len(base.Terms.Block), len(result.Terms.Block))
	}
}

func TestLoadPacks_NonExistentDir(t *testing.T) {
	base := DefaultPolicy()
	result, _, err := LoadPacks("/nonexistent/path/packs", base)
	if err != nil {
		t.Fatalf("unexpected error for non-existent dir: %v", err)
	}
	if result != base {
		t.Errorf("expected base policy returned unchanged")
	}
}

func TestLoadPacks_MergesTerms(t *testing.T) {
	dir := t.TempDir()
	base := DefaultPolicy()

	packYAML := `
name: "Finance Pack"
description: "Extra caution around banking apps"
version: "1.0.0"
author: "Test"
terms:
  sensitive: ["iban", "routing number", "PASSWORD"]
  block: ["wire transfer"]
blocked_apps: ["KeePass"]
`
	if err := os.WriteFile(filepath.Join(dir, "finance.yaml"), []byte(packYAML), 0644); err != nil {
		t.Fatal(err)
	}

	result, infos, err := LoadPacks(dir, base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(infos) != 1 {
		t.Fatalf("expected 1 pack info, got %d", len(infos))
	}
	if infos[0].Name != "Finance Pack" {
		t.Errorf("expected pack name 'Finance Pack', got %q", infos[0].Name)
	}
	if infos[0].TermCount != 4 {
		t.Errorf("expected 4 terms in pack, got %d", infos[0].TermCount)
	}
	if !infos[0].Enabled {
		t.Error("expected pack to be enabled")
	}

	// "PASSWORD" duplicates a default term case-insensitively.
	if want := len(base.Terms.Sensitive) + 2; len(result.Terms.Sensitive) != want {
		t.Errorf("expected %d sensitive terms, got %d: %v", want, len(result.Terms.Sensitive), result.Terms.Sensitive)
	}
	if want := len(base.Terms.Block) + 1; len(result.Terms.Block) != want {
		t.Errorf("expected %d block terms, got %d", want, len(result.Terms.Block))
	}
	if len(result.BlockedApps) != 1 || result.BlockedApps[0] != "KeePass" {
		t.Errorf("expected blocked app KeePass, got %v", result.BlockedApps)
	}
}

func TestLoadPacks_DisabledPack(t *testing.T) {
	dir := t.TempDir()
	base := DefaultPolicy()

	packYAML := `
name: "Disabled Pack"
terms:
  block: ["should-not-apply"]
`
	if err := os.WriteFile(filepath.Join(dir, "_disabled-pack.yaml"), []byte(packYAML), 0644); err != nil {
		t.Fatal(err)
	}

	result, infos, err := LoadPacks(dir, base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(infos) != 1 {
		t.Fatalf("expected 1 pack info, got %d", len(infos))
	}
	if infos[0].Enabled {
		t.Error("expected pack to be disabled")
	}
	if len(result.Terms.Block) != len(base.Terms.Block) {
		t.Errorf("disabled pack terms should not merge: expected %d, got %d", len(base.Terms.Block), len(result.Terms.Block))
	}
}

func TestLoadPacks_BrokenPackListedNotMerged(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.yml"), []byte("terms: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}

	result, infos, err := LoadPacks(dir, DefaultPolicy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "broken" {
		t.Fatalf("expected only the broken pack listed, got %+v", infos)
	}
	if len(result.Terms.Block) != len(DefaultPolicy().Terms.Block) {
		t.Error("broken pack should not change terms")
	}
}

func TestLoadPacks_DoesNotMutateBase(t *testing.T) {
	dir := t.TempDir()
	base := DefaultPolicy()
	before := len(base.Terms.Confirm)

	packYAML := `
terms:
  confirm: ["purchase", "checkout"]
`
	if err := os.WriteFile(filepath.Join(dir, "shop.yaml"), []byte(packYAML), 0644); err != nil {
		t.Fatal(err)
	}

	result, _, err := LoadPacks(dir, base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(base.Terms.Confirm) != before {
		t.Errorf("base policy mutated: %v", base.Terms.Confirm)
	}
	if len(result.Terms.Confirm) != before+2 {
		t.Errorf("expected %d confirm terms, got %d", before+2, len(result.Terms.Confirm))
	}
}

func TestLoadPacks_BrokenPackCarriesError(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "_broken.yaml"), []byte("name: [x"), 0644); err != nil {
		t.Fatal(err)
	}
	_, infos, err := LoadPacks(dir, DefaultPolicy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(infos) != 1 || infos[0].Err == nil {
		t.Fatalf("expected a parse error on the listed pack, got %+v", infos)
	}
	if infos[0].Enabled || infos[0].File != "broken" {
		t.Errorf("expected disabled pack file 'broken', got %+v", infos[0])
	}
}

func TestPackFileName(t *testing.T) {
	tests := []struct {
		file    string
		name    string
		enabled bool
	}{
		{"finance.yaml", "finance", true},
		{"/tmp/packs/_finance.yml", "finance", false},
		{"shop.YAML", "shop", true},
	}
	for _, tt := range tests {
		name, enabled := PackFileName(tt.file)
		if name != tt.name || enabled != tt.enabled {
			t.Errorf("PackFileName(%q) = %q, %v; want %q, %v", tt.file, name, enabled, tt.name, tt.enabled)
		}
	}
}

func TestUnion_SkipsBlanksAndDuplicates(t *testing.T) {
	got := union([]string{"Mail"}, []string{"mail", "", "  ", "Slack", "slack"})
	if len(got) != 2 || got[1] != "Slack" {
		t.Errorf("union = %v, want [Mail Slack]", got)
	}
}
