package domain

// TargetLocation is a concrete destination in the note store plus the
// template used to render content for it. Resolution is total: callers can
// rely on a non-zero Path for every category.
type TargetLocation struct {
	Path     string
	Template string
}

// IsZero reports whether the location is unset. The resolver treats returning
// a zero location as a checked precondition violation.
func (t TargetLocation) IsZero() bool {
	return t.Path == ""
}

// RegistryEntry maps a (category, sub-area) key to a target location. Entries
// with an empty SubArea act as the category-level default.
type RegistryEntry struct {
	Category Category
	SubArea  string
	Path     string
	Template string
}
