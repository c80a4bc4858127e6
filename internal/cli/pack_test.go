package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gzhole/deskpilot/internal/config"
	"github.com/gzhole/deskpilot/internal/policy"
)

const bankingPack = `
name: Banking
description: Extra caution around banking apps
version: "1.0"
terms:
  sensitive: [iban]
  block: [wire transfer]
blocked_apps: [KeePass]
`

func TestPackCommands(t *testing.T) {
	home := t.TempDir()
	t.Setenv(config.EnvHome, home)
	packs := filepath.Join(home, config.DefaultPacksDir)
	require.NoError(t, os.MkdirAll(packs, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(packs, "banking.yml"), []byte(bankingPack), 0600))

	out, err := execute(t, "pack", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "banking")
	assert.Contains(t, out, "2 terms, 1 blocked apps, v1.0")

	out, err = execute(t, "pack", "disable", "banking")
	require.NoError(t, err)
	assert.Contains(t, out, "Pack 'banking' disabled.")
	assert.FileExists(t, filepath.Join(packs, "_banking.yml"))

	out, err = execute(t, "pack", "disable", "banking")
	require.NoError(t, err)
	assert.Contains(t, out, "already disabled")

	out, err = execute(t, "pack", "show", "banking")
	require.NoError(t, err)
	assert.Contains(t, out, "Banking (disabled)")
	assert.Contains(t, out, "Block terms:")
	assert.Contains(t, out, "wire transfer")

	_, err = execute(t, "pack", "enable", "banking")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(packs, "banking.yml"))

	_, err = execute(t, "pack", "enable", "missing")
	assert.ErrorIs(t, err, errPackNotFound)
}

func TestPrintPacks(t *testing.T) {
	var out bytes.Buffer
	printPacks(&out, "/packs", nil)
	assert.Contains(t, out.String(), "No policy packs installed.")

	out.Reset()
	printPacks(&out, "/packs", []policy.PackInfo{
		{File: "broken", Err: assert.AnError},
		{File: "shop", Description: "checkout guard", Enabled: true, TermCount: 3, Author: "ops"},
	})
	assert.Contains(t, out.String(), "invalid: "+assert.AnError.Error())
	assert.Contains(t, out.String(), "3 terms, 0 blocked apps by ops")
}
