package upload

import (
	"path/filepath"
	"strings"
)

// maxStemLength is the cap on the sanitized filename's stem (excluding
// extension), per contract.
const maxStemLength = 200

// invalidFilenameChars are replaced with an underscore. ext4/NTFS/macOS all
// reject at least one of these; Windows rejects all of them.
const invalidFilenameChars = `<>:"/\|?*`

// SanitizeFilename strips any path components from name, replaces reserved
// and control characters with underscores, trims trailing spaces and dots,
// and caps the stem at maxStemLength characters while preserving the
// extension.
func SanitizeFilename(name string) string {
	base := filepath.Base(name)
	// filepath.Base only splits on '/'; a Windows-style path component or an
	// embedded backslash is equally a traversal vector, so strip up through
	// the last of either separator.
	if idx := strings.LastIndexAny(base, `/\`); idx >= 0 {
		base = base[idx+1:]
	}

	cleaned := replaceInvalidChars(base)
	cleaned = strings.TrimRight(cleaned, " .")
	if cleaned == "" {
		cleaned = "file"
	}

	ext := filepath.Ext(cleaned)
	stem := strings.TrimSuffix(cleaned, ext)

	if runes := []rune(stem); len(runes) > maxStemLength {
		stem = string(runes[:maxStemLength])
	}

	return stem + ext
}

func replaceInvalidChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case strings.ContainsRune(invalidFilenameChars, r):
			b.WriteByte('_')
		case r < 0x20 || r == 0x7f:
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
