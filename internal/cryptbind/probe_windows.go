//go:build windows

package cryptbind

// probe never succeeds on Windows: crypt(3) and its shared-library
// names in LibraryNames are a Unix convention. Callers see the same
// ErrNoCryptFunction a Unix host would return if none of the libraries
// were present, keeping the error taxonomy platform-independent.
func probe() (*Binding, error) {
	return nil, ErrNoCryptFunction
}
