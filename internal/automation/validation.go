package automation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength      = 100
	maxDescriptionLen  = 500
	maxUIDLength       = 128
	maxModuleIDLength  = 64
	maxModulesPerKind  = 50
	maxTags            = 20
	maxUIDPrefixLength = 40
	moduleIDPattern    = `^[A-Za-z0-9_-]+$`
)

var moduleIDRegex = regexp.MustCompile(moduleIDPattern)

// ValidateRule checks a prepared rule: identifiers present and unique, every
// module placed in the list matching its kind, and the rule doing something.
func ValidateRule(r *Rule) error {
	if r == nil {
		return fmt.Errorf("%w: nil rule", ErrInvalidRule)
	}
	if r.UID == "" || len(r.UID) > maxUIDLength {
		return fmt.Errorf("%w: uid must be 1-%d characters", ErrInvalidRule, maxUIDLength)
	}
	if len(r.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidRule, maxNameLength)
	}
	if len(r.Description) > maxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidRule, maxDescriptionLen)
	}
	if len(r.Tags) > maxTags {
		return fmt.Errorf("%w: exceeds maximum of %d tags", ErrInvalidRule, maxTags)
	}
	if len(r.Triggers) == 0 && len(r.Actions) == 0 && r.Body == nil {
		return fmt.Errorf("%w: rule has no triggers, actions or body", ErrInvalidRule)
	}

	seen := make(map[string]bool)
	lists := []struct {
		kind    ModuleKind
		modules []Module
	}{
		{TriggerModule, r.Triggers},
		{ConditionModule, r.Conditions},
		{ActionModule, r.Actions},
	}
	for _, l := range lists {
		if len(l.modules) > maxModulesPerKind {
			return fmt.Errorf("%w: exceeds maximum of %d %s modules", ErrInvalidRule, maxModulesPerKind, l.kind)
		}
		for i, m := range l.modules {
			if err := ValidateModule(m, l.kind); err != nil {
				return fmt.Errorf("%s[%d]: %w", l.kind, i, err)
			}
			if seen[m.ID] {
				return fmt.Errorf("%w: duplicate module id %q", ErrInvalidRule, m.ID)
			}
			seen[m.ID] = true
		}
	}
	return nil
}

// ValidateModule checks a single module placed in a list of the given kind.
func ValidateModule(m Module, kind ModuleKind) error {
	if m.Kind != kind {
		return fmt.Errorf("%w: module %q has kind %q in the %s list", ErrInvalidRule, m.ID, m.Kind, kind)
	}
	if len(m.ID) > maxModuleIDLength || !moduleIDRegex.MatchString(m.ID) {
		return fmt.Errorf("%w: module id %q must be 1-%d letters, digits, '-' or '_'", ErrInvalidRule, m.ID, maxModuleIDLength)
	}
	if m.TypeID == "" {
		return fmt.Errorf("%w: module %q has no type", ErrInvalidRule, m.ID)
	}
	return nil
}

// GenerateSlug creates a URL-safe slug from a name.
// It lowercases, replaces spaces/underscores with hyphens, removes
// non-alphanumeric characters, and trims to maxUIDPrefixLength.
func GenerateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "_", "-")

	var result strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	slug = result.String()

	// Clean up multiple/leading/trailing hyphens
	slug = strings.Trim(slug, "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}

	if len(slug) > maxUIDPrefixLength {
		slug = slug[:maxUIDPrefixLength]
		slug = strings.TrimRight(slug, "-")
	}

	return slug
}

// GenerateID creates a new UUID for an execution record.
func GenerateID() string {
	return uuid.New().String()
}

// generateRuleUID returns "<slug>_<uuid>", using "rule" when the name
// produces no slug.
func generateRuleUID(name string) string {
	prefix := GenerateSlug(name)
	if prefix == "" {
		prefix = "rule"
	}
	return prefix + "_" + uuid.New().String()
}
