//go:build !darwin

package clipboard

// NewSystemSource returns ErrUnsupportedPlatform; only the macOS pasteboard
// is bound.
func NewSystemSource() (Source, error) {
	return nil, ErrUnsupportedPlatform
}
