package space

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/habitat-home/habitat-core/internal/property"
)

// maxNameLength bounds display names; longer names are a configuration bug.
const maxNameLength = 100

// maxSlugLength bounds generated slugs.
const maxSlugLength = 50

// ValidateSpace checks a space for structural validity.
func ValidateSpace(s *Space) error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(s.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateSource checks a source and its property assignments against the
// property catalog.
func ValidateSource(s *Source) error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if s.SpaceID == "" {
		return fmt.Errorf("%w: source %s has no space", ErrInvalidProperty, s.ID)
	}
	if s.AdapterID == "" || s.EntityID == "" {
		return fmt.Errorf("%w: source %s has an incomplete route", ErrInvalidProperty, s.ID)
	}
	for i := range s.Properties {
		if err := ValidateSourceProperty(&s.Properties[i]); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSourceProperty checks one property assignment against the catalog:
// the property must exist, the role must be in the domain vocabulary and
// the feature set must be a subset of the domain's features.
func ValidateSourceProperty(p *SourceProperty) error {
	if !property.Valid(p.Property) {
		return fmt.Errorf("%w: unknown property %q", ErrInvalidProperty, p.Property)
	}
	if p.Role != "" {
		if err := property.ValidateRole(p.Property, p.Role); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidProperty, err)
		}
	}
	if err := property.ValidateFeatures(p.Property, p.Features); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProperty, err)
	}
	return nil
}

// GenerateSlug creates a URL-safe slug from a display name.
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

	slug = strings.Trim(slug, "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}

	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	return slug
}

// GenerateID creates a new UUID for a space or source.
func GenerateID() string {
	return uuid.New().String()
}
