package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gzhole/deskpilot/internal/policy"
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Manage policy packs",
	Long: `Manage DeskPilot policy packs.

A pack is a YAML file in ~/.deskpilot/packs/ that adds risk terms and
blocked apps to the base policy. The planner and the executor both merge
every enabled pack. A file name starting with "_" disables the pack.

Examples:
  deskpilot pack list
  deskpilot pack disable banking
  deskpilot pack enable banking
  deskpilot pack show banking`,
}

var packListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed policy packs",
	RunE:  packListCommand,
}

var packEnableCmd = &cobra.Command{
	Use:   "enable <pack-name>",
	Short: "Enable a disabled policy pack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return packToggleCommand(cmd, args[0], true)
	},
}

var packDisableCmd = &cobra.Command{
	Use:   "disable <pack-name>",
	Short: "Disable a policy pack without deleting it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return packToggleCommand(cmd, args[0], false)
	},
}

var packShowCmd = &cobra.Command{
	Use:   "show <pack-name>",
	Short: "Show what a policy pack adds to the policy",
	Args:  cobra.ExactArgs(1),
	RunE:  packShowCommand,
}

func init() {
	packCmd.AddCommand(packListCmd, packEnableCmd, packDisableCmd, packShowCmd)
	rootCmd.AddCommand(packCmd)
}

var errPackNotFound = errors.New("pack not found")

func packsDir() (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(cfg.PacksDir, 0700); err != nil {
		return "", err
	}
	return cfg.PacksDir, nil
}

// findPack locates name in dir under either spelling and extension.
func findPack(dir, name string) (path string, enabled bool, err error) {
	for _, prefix := range []string{"", policy.DisabledPrefix} {
		for _, ext := range []string{".yaml", ".yml"} {
			p := filepath.Join(dir, prefix+name+ext)
			if _, err := os.Stat(p); err == nil {
				return p, prefix == "", nil
			}
		}
	}
	return "", false, fmt.Errorf("%w: %q in %s", errPackNotFound, name, dir)
}

// setPackEnabled renames the pack file to match enable and reports whether
// anything changed.
func setPackEnabled(dir, name string, enable bool) (bool, error) {
	path, enabled, err := findPack(dir, name)
	if err != nil {
		return false, err
	}
	if enabled == enable {
		return false, nil
	}
	target := filepath.Join(dir, name+filepath.Ext(path))
	if !enable {
		target = filepath.Join(dir, policy.DisabledPrefix+name+filepath.Ext(path))
	}
	if err := os.Rename(path, target); err != nil {
		return false, fmt.Errorf("rename pack: %w", err)
	}
	return true, nil
}

func packListCommand(cmd *cobra.Command, args []string) error {
	dir, err := packsDir()
	if err != nil {
		return err
	}
	_, infos, err := policy.LoadPacks(dir, policy.DefaultPolicy())
	if err != nil {
		return fmt.Errorf("load packs: %w", err)
	}
	printPacks(cmd.OutOrStdout(), dir, infos)
	return nil
}

func printPacks(out io.Writer, dir string, infos []policy.PackInfo) {
	if len(infos) == 0 {
		fmt.Fprintln(out, "No policy packs installed.")
		fmt.Fprintf(out, "\nCopy pack YAML files to: %s\n", dir)
		return
	}

	fmt.Fprintln(out, "Policy Packs:")
	fmt.Fprintln(out, strings.Repeat("─", 60))
	for _, info := range infos {
		fmt.Fprintf(out, "  %s  %-20s %s\n", passIcon(info.Enabled && info.Err == nil), info.File, info.Description)
		switch {
		case info.Err != nil:
			fmt.Fprintf(out, "       invalid: %v\n", info.Err)
		default:
			fmt.Fprintf(out, "       %d terms, %d blocked apps", info.TermCount, info.BlockedApps)
			if info.Version != "" {
				fmt.Fprintf(out, ", v%s", info.Version)
			}
			if info.Author != "" {
				fmt.Fprintf(out, " by %s", info.Author)
			}
			fmt.Fprintln(out)
		}
	}
	fmt.Fprintln(out, strings.Repeat("─", 60))
	fmt.Fprintf(out, "\nPacks directory: %s\n", dir)
}

func packToggleCommand(cmd *cobra.Command, name string, enable bool) error {
	dir, err := packsDir()
	if err != nil {
		return err
	}
	changed, err := setPackEnabled(dir, name, enable)
	if err != nil {
		return err
	}

	state := "disabled"
	if enable {
		state = "enabled"
	}
	if !changed {
		fmt.Fprintf(cmd.OutOrStdout(), "Pack '%s' is already %s.\n", name, state)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Pack '%s' %s.\n", passIcon(enable), name, state)
	return nil
}

func packShowCommand(cmd *cobra.Command, args []string) error {
	dir, err := packsDir()
	if err != nil {
		return err
	}
	path, enabled, err := findPack(dir, args[0])
	if err != nil {
		return err
	}
	pack, err := policy.ReadPack(path)
	if err != nil {
		return err
	}
	printPack(cmd.OutOrStdout(), path, enabled, pack)
	return nil
}

func printPack(out io.Writer, path string, enabled bool, pack *policy.Pack) {
	name := pack.Name
	if name == "" {
		name, _ = policy.PackFileName(path)
	}
	status := "enabled"
	if !enabled {
		status = "disabled"
	}
	fmt.Fprintf(out, "%s (%s)\n", name, status)
	if pack.Description != "" {
		fmt.Fprintf(out, "  %s\n", pack.Description)
	}
	fmt.Fprintf(out, "  File: %s\n", path)

	lists := []struct {
		label string
		terms []string
	}{
		{"Block terms", pack.Terms.Block},
		{"Destructive terms", pack.Terms.Destructive},
		{"Sensitive terms", pack.Terms.Sensitive},
		{"Confirm terms", pack.Terms.Confirm},
		{"Blocked apps", pack.BlockedApps},
	}
	for _, l := range lists {
		if len(l.terms) == 0 {
			continue
		}
		fmt.Fprintf(out, "  %-18s %s\n", l.label+":", strings.Join(l.terms, ", "))
	}
}
