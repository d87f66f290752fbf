package clipboard

import (
	"clipboard-history/pkg/types"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Capturer turns one content kind of a snapshot into items.
type Capturer interface {
	// Kind is the content type produced by this capturer
	Kind() types.ContentType

	// Detect fingerprints the snapshot's content of this kind. It returns
	// ErrNoContent when the kind is absent and a *types.ValidationError
	// when present but unusable.
	Detect(snap Snapshot) (Fingerprint, error)

	// Items builds the items to persist. Called only after Detect succeeded
	// and the fingerprint was not a duplicate.
	Items(snap Snapshot) ([]*types.Item, error)
}

// DefaultCapturers is the text-only pipeline.
func DefaultCapturers() []Capturer {
	return []Capturer{TextCapturer{}}
}

// ExtendedCapturers also records files, URLs, images and videos. Image and
// video payloads are written into mediaDir.
func ExtendedCapturers(mediaDir string) []Capturer {
	return []Capturer{
		FileCapturer{},
		URLCapturer{},
		ImageCapturer{Dir: mediaDir},
		VideoCapturer{Dir: mediaDir},
		TextCapturer{},
	}
}

// TextCapturer records plain text.
type TextCapturer struct{}

func (TextCapturer) Kind() types.ContentType { return types.TypeText }

func (TextCapturer) Detect(snap Snapshot) (Fingerprint, error) {
	if !snap.HasText {
		return 0, ErrNoContent
	}
	if strings.TrimSpace(snap.Text) == "" {
		return 0, &types.ValidationError{Field: "content", Reason: "empty or whitespace-only text"}
	}
	return TextFingerprint(snap.Text), nil
}

func (TextCapturer) Items(snap Snapshot) ([]*types.Item, error) {
	item, err := types.NewItem(types.TypeText, snap.Text,
		types.WithPreview(runePrefix(snap.Text, types.PreviewLength)),
		types.WithSize(int64(len(snap.Text))),
	)
	if err != nil {
		return nil, err
	}
	return []*types.Item{item}, nil
}

// FileCapturer records local files referenced by file:// URLs.
type FileCapturer struct{}

func (FileCapturer) Kind() types.ContentType { return types.TypeFile }

func (FileCapturer) Detect(snap Snapshot) (Fingerprint, error) {
	paths := localFiles(snap.URLs)
	if len(paths) == 0 {
		return 0, ErrNoContent
	}
	return FingerprintOf("file", joinLines(paths)), nil
}

func (FileCapturer) Items(snap Snapshot) ([]*types.Item, error) {
	var items []*types.Item
	for _, p := range localFiles(snap.URLs) {
		fi, err := os.Stat(p)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		item, err := types.NewItem(types.TypeFile, p,
			types.WithPreview(filepath.Base(p)),
			types.WithSize(fi.Size()),
		)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// URLCapturer records non-file URLs.
type URLCapturer struct{}

func (URLCapturer) Kind() types.ContentType { return types.TypeURL }

func (URLCapturer) Detect(snap Snapshot) (Fingerprint, error) {
	urls := remoteURLs(snap.URLs)
	if len(urls) == 0 {
		return 0, ErrNoContent
	}
	return FingerprintOf("url", joinLines(urls)), nil
}

func (URLCapturer) Items(snap Snapshot) ([]*types.Item, error) {
	var items []*types.Item
	for _, u := range remoteURLs(snap.URLs) {
		item, err := types.NewItem(types.TypeURL, u, types.WithPreview(u))
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// ImageCapturer writes image data to Dir and records its path.
type ImageCapturer struct {
	Dir string
}

func (ImageCapturer) Kind() types.ContentType { return types.TypeImage }

func (c ImageCapturer) Detect(snap Snapshot) (Fingerprint, error) {
	if len(snap.Image) == 0 {
		return 0, ErrNoContent
	}
	return FingerprintOf("image", snap.Image), nil
}

func (c ImageCapturer) Items(snap Snapshot) ([]*types.Item, error) {
	ext := snap.ImageExt
	if ext == "" {
		ext = "png"
	}
	return materialize(c.Dir, "clipboard_img", ext, types.TypeImage, "Image", snap.Image)
}

// VideoCapturer writes the first video representation to Dir.
type VideoCapturer struct {
	Dir string
}

func (VideoCapturer) Kind() types.ContentType { return types.TypeVideo }

func (c VideoCapturer) Detect(snap Snapshot) (Fingerprint, error) {
	_, data := videoFormat(snap)
	if len(data) == 0 {
		return 0, ErrNoContent
	}
	return FingerprintOf("video", data), nil
}

func (c VideoCapturer) Items(snap Snapshot) ([]*types.Item, error) {
	_, data := videoFormat(snap)
	return materialize(c.Dir, "clipboard_video", "mp4", types.TypeVideo, "Video clip", data)
}

func videoFormat(snap Snapshot) (string, []byte) {
	for name, data := range snap.Formats {
		lower := strings.ToLower(name)
		if (strings.Contains(lower, "video") || strings.Contains(lower, "movie")) && len(data) > 0 {
			return name, data
		}
	}
	return "", nil
}

func materialize(dir, prefix, ext string, ct types.ContentType, preview string, data []byte) ([]*types.Item, error) {
	if dir == "" {
		return nil, fmt.Errorf("no media directory configured for %s capture", ct)
	}
	name := fmt.Sprintf("%s_%d.%s", prefix, time.Now().UnixNano(), ext)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s payload: %w", ct, err)
	}
	item, err := types.NewItem(ct, path,
		types.WithPreview(preview),
		types.WithSize(int64(len(data))),
	)
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	return []*types.Item{item}, nil
}

func localFiles(raw []string) []string {
	var paths []string
	for _, r := range raw {
		u, err := url.Parse(strings.TrimSpace(r))
		if err != nil || u.Scheme != "file" || u.Path == "" {
			continue
		}
		paths = append(paths, filepath.FromSlash(u.Path))
	}
	return paths
}

func remoteURLs(raw []string) []string {
	var urls []string
	for _, r := range raw {
		r = strings.TrimSpace(r)
		u, err := url.Parse(r)
		if err != nil || u.Scheme == "" || u.Scheme == "file" || !u.IsAbs() {
			continue
		}
		urls = append(urls, r)
	}
	return urls
}

func runePrefix(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[:i]
		}
		n--
	}
	return s
}
