package storage

import "strings"

// tempPrefix starts temporary write files. The leading dot keeps them out of
// Matches; the namespace suffix they end with lets a purge find them.
const tempPrefix = ".tmp-"

// NamespaceFilter selects the file names owned by one namespace out of a
// directory that may be shared with other namespaces.
type NamespaceFilter struct {
	Suffix string
}

// Matches reports whether name belongs to the namespace. Dot-prefixed names
// are never event files; they hold temporary writes and lock files.
func (f NamespaceFilter) Matches(name string) bool {
	return name != "" &&
		!strings.HasPrefix(name, ".") &&
		len(name) > len(f.Suffix) &&
		strings.HasSuffix(name, f.Suffix)
}

// Filename returns the file name for an event id.
func (f NamespaceFilter) Filename(id string) string {
	return id + f.Suffix
}

// IDFromFilename recovers the event id from a matching file name.
func (f NamespaceFilter) IDFromFilename(name string) (string, bool) {
	if !f.Matches(name) {
		return "", false
	}
	return strings.TrimSuffix(name, f.Suffix), true
}

// TempPattern returns the os.CreateTemp pattern for in-flight writes. Its
// length depends only on the suffix, never on the event id.
func (f NamespaceFilter) TempPattern() string {
	return tempPrefix + "*" + f.Suffix
}

// IsTemp reports whether name is a temporary write file of the namespace.
func (f NamespaceFilter) IsTemp(name string) bool {
	return strings.HasPrefix(name, tempPrefix) && strings.HasSuffix(name, f.Suffix)
}
