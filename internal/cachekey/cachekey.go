// Package cachekey derives content-addressed cache keys from a video's
// source: a normalized URL, an extractor identity, or a local file hash.
package cachekey

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"
)

// HashChunkSize is the buffer size used for streaming file hashing, matching
// the teacher's chunked-upload style (see internal/upload).
const HashChunkSize = 8 * 1024 * 1024

var (
	ErrMissingSourceURL  = errors.New("cachekey: source_url is required for source_type=url")
	ErrMissingFileHash   = errors.New("cachekey: file_hash is required for source_type=local")
	ErrUnsupportedSource = errors.New("cachekey: unsupported source_type")
)

// ExtractorIdentity resolves a stable (extractor, id) pair for a URL, the way
// yt-dlp's metadata extraction does. Implementations that can shell out to a
// real extractor should satisfy this; a nil Extractor is valid and simply
// falls back to normalized-URL identity.
type ExtractorIdentity interface {
	Identify(ctx context.Context, rawURL string) (extractor, id string, ok bool)
}

// NormalizeURL canonicalizes a URL for identity purposes: lowercases the
// scheme and rewrites http to https, lowercases the host, sorts query parameters, strips trailing slashes from
// the path (except root) and drops the fragment.
func NormalizeURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "http" {
		scheme = "https"
	}

	host := strings.ToLower(u.Host)

	query := u.Query()
	sortedQuery := sortedQueryString(query)

	path := u.Path
	if path != "/" {
		path = strings.TrimRight(path, "/")
	}

	normalized := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     path,
		RawQuery: sortedQuery,
	}
	return normalized.String()
}

func sortedQueryString(values url.Values) string {
	type pair struct{ k, v string }
	var pairs []pair
	for k, vs := range values {
		for _, v := range vs {
			pairs = append(pairs, pair{k, v})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})

	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.v))
	}
	return b.String()
}

// ComputeURLCacheKey derives a cache key for a URL source. When an
// ExtractorIdentity is supplied and resolves, the key is derived from the
// stable (extractor, id) pair rather than the normalized URL, matching the
// original service's yt-dlp-first strategy.
func ComputeURLCacheKey(ctx context.Context, rawURL string, identity ExtractorIdentity) string {
	var source string
	if identity != nil {
		if extractor, id, ok := identity.Identify(ctx, rawURL); ok && extractor != "" && id != "" {
			source = fmt.Sprintf("ytdlp:%s:%s", strings.ToLower(extractor), id)
		}
	}
	if source == "" {
		source = "url:" + NormalizeURL(rawURL)
	}
	return sha256Hex(source)
}

// ComputeFileHash streams a file's contents through SHA-256.
func ComputeFileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cachekey: open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, HashChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("cachekey: hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ComputeLocalCacheKey derives a cache key from a precomputed file hash.
func ComputeLocalCacheKey(fileHash string) string {
	return sha256Hex("file:" + fileHash)
}

// ComputeFromSource dispatches to the URL or local derivation based on
// sourceType, mirroring compute_cache_key_from_source.
func ComputeFromSource(ctx context.Context, sourceType, sourceURL, fileHash string, identity ExtractorIdentity) (string, error) {
	switch sourceType {
	case "url":
		if sourceURL == "" {
			return "", ErrMissingSourceURL
		}
		return ComputeURLCacheKey(ctx, sourceURL, identity), nil
	case "local":
		if fileHash == "" {
			return "", ErrMissingFileHash
		}
		return ComputeLocalCacheKey(fileHash), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedSource, sourceType)
	}
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
