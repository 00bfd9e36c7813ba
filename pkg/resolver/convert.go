package resolver

import (
	"regexp"

	"github.com/iconidentify/tikgrabba/internal/domain"
)

var (
	convertExpiresRe = regexp.MustCompile(`k_exp\s*=\s*"(\d+)"`)
	convertTokenRe   = regexp.MustCompile(`k_token\s*=\s*"([a-f0-9]+)"`)
	convertURLRe     = regexp.MustCompile(`k_url_convert\s*=\s*"(https?://[^"]+)"`)
)

// ExtractConvert scans a payload for the audio-conversion variables some
// resolvers embed in inline script. Missing variables are left empty.
func ExtractConvert(html string) domain.ConvertMetadata {
	var meta domain.ConvertMetadata
	if v, ok := ExtractToken(convertExpiresRe, html); ok {
		meta.Expires = v
	}
	if v, ok := ExtractToken(convertTokenRe, html); ok {
		meta.Token = v
	}
	if v, ok := ExtractToken(convertURLRe, html); ok {
		meta.URL = v
	}
	return meta
}
