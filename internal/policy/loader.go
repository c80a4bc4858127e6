package policy

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a policy file. A missing file yields DefaultPolicy; empty term
// lists in an existing file fall back to the defaults for that list.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return nil, err
	}

	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, err
	}

	def := DefaultPolicy()
	if policy.Version == "" {
		policy.Version = def.Version
	}
	if len(policy.Terms.Destructive) == 0 {
		policy.Terms.Destructive = def.Terms.Destructive
	}
	if len(policy.Terms.Sensitive) == 0 {
		policy.Terms.Sensitive = def.Terms.Sensitive
	}
	if len(policy.Terms.Block) == 0 {
		policy.Terms.Block = def.Terms.Block
	}
	if len(policy.Terms.Confirm) == 0 {
		policy.Terms.Confirm = def.Terms.Confirm
	}

	return &policy, nil
}

func DefaultPolicy() *Policy {
	return &Policy{
		Version: "0.1",
		Terms: Terms{
			Destructive: []string{"delete", "remove", "wipe", "format", "uninstall", "drop database", "reset"},
			Sensitive:   []string{"password", "otp", "api key", "token", "secret", "credential", "system settings"},
			Block:       []string{"captcha", "bypass", "anti-bot", "unauthorized access"},
			Confirm:     []string{"delete", "overwrite", "system settings", "registry", "credentials"},
		},
	}
}
