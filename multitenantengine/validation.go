package multitenantengine

import (
	"fmt"
	"regexp"

	"github.com/liamcoop/ruleengine/facts"
)

var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// ValidateTenantID accepts database UUIDs as well as short slugs such as "acme-eu".
func ValidateTenantID(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}
	if len(tenantID) > 100 {
		return fmt.Errorf("tenant id length %d exceeds maximum of 100 characters", len(tenantID))
	}
	if !tenantIDPattern.MatchString(tenantID) {
		return fmt.Errorf("tenant id %q must match pattern ^[a-zA-Z0-9][a-zA-Z0-9_-]*$", tenantID)
	}
	return nil
}

// ValidateTenantConfig validates the schema and the derived field definitions.
// Derived expressions are compiled, so a config that passes can always be
// turned into a Deriver.
func ValidateTenantConfig(config TenantConfig) error {
	if err := facts.ValidateSchema(config.Schema); err != nil {
		return err
	}

	seen := make(map[string]bool, len(config.Derived))
	for _, d := range config.Derived {
		if seen[d.Name] {
			return fmt.Errorf("derived field %q is declared twice", d.Name)
		}
		seen[d.Name] = true
		if d.Expression == "" {
			return fmt.Errorf("derived field %q has an empty expression", d.Name)
		}
	}

	if _, err := facts.NewDeriver(config.Schema, config.Derived); err != nil {
		return err
	}
	return nil
}
