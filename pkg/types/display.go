package types

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultDisplayLength is the list row width used by the tray window.
	DefaultDisplayLength = 50

	// PreviewLength bounds the stored preview of text items.
	PreviewLength = 100

	ellipsis = "..."
)

// FormattedTime renders the capture time as "YYYY-MM-DD HH:MM:SS" in local time.
func (i *Item) FormattedTime() string {
	return i.Time().Local().Format("2006-01-02 15:04:05")
}

// FormattedSize renders Size with base-1024 units and one decimal place.
func (i *Item) FormattedSize() string {
	if i.Size == nil {
		return "N/A"
	}
	return HumanSize(*i.Size)
}

// HumanSize formats n bytes as B, KB, MB or GB.
func HumanSize(n int64) string {
	const unit = 1024
	switch {
	case n < unit:
		return fmt.Sprintf("%d B", n)
	case n < unit*unit:
		return fmt.Sprintf("%.1f KB", float64(n)/unit)
	case n < unit*unit*unit:
		return fmt.Sprintf("%.1f MB", float64(n)/(unit*unit))
	default:
		return fmt.Sprintf("%.1f GB", float64(n)/(unit*unit*unit))
	}
}

// DisplayText returns a single-line label for the item of at most maxLen runes.
func (i *Item) DisplayText(maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultDisplayLength
	}
	switch i.ContentType {
	case TypeText:
		line := collapseSpaces(firstLine(i.Content))
		if strings.HasPrefix(line, "file://") {
			return FileBase(line)
		}
		return Truncate(line, maxLen)
	case TypeFile:
		return FileBase(i.Content)
	case TypeURL:
		return Truncate(i.Content, maxLen)
	case TypeImage:
		return "Image"
	case TypeVideo:
		return "Video"
	}
	return Truncate(i.Preview, maxLen)
}

// FileBase strips a file:// or file:/// prefix and returns the last path element.
func FileBase(p string) string {
	p = strings.TrimSpace(p)
	uri := strings.HasPrefix(p, "file://")
	if strings.HasPrefix(p, "file:///") {
		p = strings.TrimPrefix(p, "file:///")
	} else {
		p = strings.TrimPrefix(p, "file://")
	}
	p = strings.TrimRight(strings.ReplaceAll(p, "\\", "/"), "/")
	if p == "" {
		return ""
	}
	base := path.Base(p)
	if !uri {
		return base
	}
	// URIs carry percent-encoded names; a malformed escape is shown as is
	if decoded, err := url.PathUnescape(base); err == nil {
		return decoded
	}
	return base
}

// Truncate shortens s to maxLen runes including the ellipsis, cutting at a
// word boundary when one exists in the second half of the kept text.
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if maxLen <= len(ellipsis) {
		return string(runes[:maxLen])
	}
	keep := maxLen - len(ellipsis)
	cut := runes[:keep]
	if runes[keep] != ' ' {
		if idx := lastSpace(cut); idx > keep/2 {
			cut = cut[:idx]
		}
	}
	return strings.TrimRight(string(cut), " ") + ellipsis
}

func lastSpace(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == ' ' {
			return i
		}
	}
	return -1
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
