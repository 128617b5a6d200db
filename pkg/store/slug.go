package store

import (
	"regexp"

	"github.com/kanbanhq/controlplane/pkg/apierr"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{1,61}[a-z0-9])?$`)

// ValidateSlug checks the DNS-safe, 3-63 char, reserved-word-free slug
// invariant every workspace, team, and sandbox slug must satisfy. reserved
// is the configured blocklist.
func ValidateSlug(slug string, reserved []string) error {
	if len(slug) < 3 || len(slug) > 63 {
		return apierr.Validationf("slug must be 3-63 characters: %q", slug)
	}
	if !slugPattern.MatchString(slug) {
		return apierr.Validationf("slug must be lowercase alphanumeric with internal hyphens: %q", slug)
	}
	for _, r := range reserved {
		if slug == r {
			return apierr.Validationf("slug %q is reserved", slug)
		}
	}
	return nil
}
