package downloader

import (
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// AssetKind selects the default filename scheme.
type AssetKind int

const (
	AssetVideo AssetKind = iota
	AssetVideoHD
	AssetSlide
)

var slideExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".heic": true, ".avif": true,
}

// DefaultName returns the filename used when the response names none.
// Slides are numbered from index 0 as _slide_01, _slide_02 and keep the
// image extension of their URL when it has one.
func DefaultName(prefix string, kind AssetKind, index int, rawURL string) string {
	if prefix == "" {
		prefix = "tiktok"
	}
	switch kind {
	case AssetVideoHD:
		return prefix + "_video_hd.mp4"
	case AssetSlide:
		return fmt.Sprintf("%s_slide_%02d%s", prefix, index+1, slideExtension(rawURL))
	default:
		return prefix + "_video.mp4"
	}
}

func slideExtension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ".jpg"
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if slideExtensions[ext] {
		return ext
	}
	return ".jpg"
}

// FilenameFromDisposition extracts a safe base name from a Content-Disposition
// header. Directory components are stripped.
func FilenameFromDisposition(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return "", false
	}
	name := params["filename"]
	if name == "" {
		return "", false
	}
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "", false
	}
	return name, true
}

// uniquePath returns p, or p with a numeric suffix before the extension
// when p already exists.
func uniquePath(p string) string {
	if _, err := os.Stat(p); os.IsNotExist(err) {
		return p
	}
	ext := filepath.Ext(p)
	base := strings.TrimSuffix(p, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
