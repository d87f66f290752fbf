package clipboard

import (
	"errors"
	"strings"

	"github.com/cespare/xxhash/v2"
)

var (
	// ErrUnsupportedPlatform is returned by NewSystemSource where no
	// clipboard binding exists.
	ErrUnsupportedPlatform = errors.New("clipboard access is not supported on this platform")

	// ErrNoContent means a snapshot carries nothing of a capturer's kind.
	ErrNoContent = errors.New("no content of this kind")

	errWriteFailed = errors.New("failed to write to the clipboard")
)

// Snapshot is one read of the platform clipboard.
type Snapshot struct {
	HasText  bool
	Text     string
	URLs     []string
	Image    []byte
	ImageExt string            // file extension for Image, e.g. "png"
	Formats  map[string][]byte // other representations keyed by format name
}

// Source is the platform clipboard.
type Source interface {
	// ChangeCount increases every time the clipboard content changes
	ChangeCount() int

	// Read returns the current clipboard representations
	Read() (Snapshot, error)

	// WriteText replaces the clipboard content with text
	WriteText(text string) error
}

// Fingerprint is a stable digest of captured content, used to detect
// adjacent duplicates.
type Fingerprint uint64

// FingerprintOf hashes the kind tag and the payloads with xxhash64.
func FingerprintOf(kind string, payloads ...[]byte) Fingerprint {
	d := xxhash.New()
	d.WriteString(kind)
	for _, p := range payloads {
		d.Write([]byte{0})
		d.Write(p)
	}
	return Fingerprint(d.Sum64())
}

// TextFingerprint is FingerprintOf for a single text value.
func TextFingerprint(text string) Fingerprint {
	return FingerprintOf("text", []byte(text))
}

func joinLines(lines []string) []byte {
	return []byte(strings.Join(lines, "\n"))
}
