//go:build darwin

package clipboard

import (
	"runtime"
	"strings"
	"sync"

	"github.com/progrium/darwinkit/macos/appkit"
)

const (
	typeUTF8Text = appkit.PasteboardType("public.utf8-plain-text")
	typeFileURL  = appkit.PasteboardType("public.file-url")
	typeURL      = appkit.PasteboardType("public.url")
	typePNG      = appkit.PasteboardType("public.png")
	typeTIFF     = appkit.PasteboardType("public.tiff")
)

type pasteboardSource struct {
	pasteboard appkit.Pasteboard
	mu         sync.Mutex
}

func init() {
	// AppKit objects must be touched from the main thread
	runtime.LockOSThread()
}

// NewSystemSource returns the general NSPasteboard.
func NewSystemSource() (Source, error) {
	return &pasteboardSource{
		pasteboard: appkit.Pasteboard_GeneralPasteboard(),
	}, nil
}

func (p *pasteboardSource) ChangeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pasteboard.ChangeCount()
}

func (p *pasteboardSource) Read() (Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var snap Snapshot
	if text := p.pasteboard.StringForType(typeUTF8Text); text != "" {
		snap.HasText = true
		snap.Text = text
	}

	for _, t := range []appkit.PasteboardType{typeFileURL, typeURL} {
		if u := p.pasteboard.StringForType(t); u != "" {
			snap.URLs = append(snap.URLs, u)
		}
	}

	if data := p.pasteboard.DataForType(typePNG); len(data) > 0 {
		snap.Image, snap.ImageExt = data, "png"
	} else if data := p.pasteboard.DataForType(typeTIFF); len(data) > 0 {
		snap.Image, snap.ImageExt = data, "tiff"
	}

	for _, t := range p.pasteboard.Types() {
		name := string(t)
		if lower := strings.ToLower(name); !strings.Contains(lower, "video") && !strings.Contains(lower, "movie") {
			continue
		}
		if data := p.pasteboard.DataForType(t); len(data) > 0 {
			if snap.Formats == nil {
				snap.Formats = make(map[string][]byte)
			}
			snap.Formats[name] = data
		}
	}

	return snap, nil
}

func (p *pasteboardSource) WriteText(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pasteboard.ClearContents()
	if !p.pasteboard.SetStringForType(text, typeUTF8Text) {
		return errWriteFailed
	}
	return nil
}
