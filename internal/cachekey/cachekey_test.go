package cachekey

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "http upgraded to https",
			in:   "http://Example.com/path",
			want: "https://example.com/path",
		},
		{
			name: "trailing slash stripped",
			in:   "https://example.com/path/",
			want: "https://example.com/path",
		},
		{
			name: "root path kept",
			in:   "https://example.com/",
			want: "https://example.com/",
		},
		{
			name: "query params sorted",
			in:   "https://example.com/watch?b=2&a=1",
			want: "https://example.com/watch?a=1&b=2",
		},
		{
			name: "fragment dropped",
			in:   "https://example.com/watch?v=1#t=10",
			want: "https://example.com/watch?v=1",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeURL(tt.in)
			if got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestComputeURLCacheKey_Deterministic(t *testing.T) {
	ctx := context.Background()
	k1 := ComputeURLCacheKey(ctx, "https://example.com/watch?a=1&b=2", nil)
	k2 := ComputeURLCacheKey(ctx, "http://EXAMPLE.com/watch?b=2&a=1", nil)

	if k1 != k2 {
		t.Errorf("expected equivalent URLs to produce the same cache key, got %q and %q", k1, k2)
	}
	if len(k1) != 64 {
		t.Errorf("expected a 64-char hex sha256 digest, got length %d", len(k1))
	}
}

type stubExtractor struct {
	extractor, id string
	ok            bool
}

func (s stubExtractor) Identify(ctx context.Context, rawURL string) (string, string, bool) {
	return s.extractor, s.id, s.ok
}

func TestComputeURLCacheKey_PrefersExtractorIdentity(t *testing.T) {
	ctx := context.Background()
	withIdentity := ComputeURLCacheKey(ctx, "https://youtu.be/abc", stubExtractor{extractor: "Youtube", id: "abc123", ok: true})
	withoutIdentity := ComputeURLCacheKey(ctx, "https://youtu.be/abc", nil)

	if withIdentity == withoutIdentity {
		t.Errorf("expected extractor identity to change the derived key")
	}

	// Same extractor identity from a different URL must collide.
	same := ComputeURLCacheKey(ctx, "https://m.youtube.com/watch?v=abc", stubExtractor{extractor: "Youtube", id: "abc123", ok: true})
	if withIdentity != same {
		t.Errorf("expected identical extractor identities to produce the same key regardless of URL shape")
	}
}

func TestComputeFileHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.bin")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	hash, err := ComputeFileHash(path)
	if err != nil {
		t.Fatalf("ComputeFileHash: %v", err)
	}

	const want = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde"
	if hash != want {
		t.Errorf("ComputeFileHash = %q, want %q", hash, want)
	}
}

func TestComputeFromSource(t *testing.T) {
	ctx := context.Background()

	if _, err := ComputeFromSource(ctx, "url", "", "", nil); err != ErrMissingSourceURL {
		t.Errorf("expected ErrMissingSourceURL, got %v", err)
	}
	if _, err := ComputeFromSource(ctx, "local", "", "", nil); err != ErrMissingFileHash {
		t.Errorf("expected ErrMissingFileHash, got %v", err)
	}
	if _, err := ComputeFromSource(ctx, "ftp", "x", "y", nil); err == nil {
		t.Errorf("expected an error for unsupported source_type")
	}

	urlKey, err := ComputeFromSource(ctx, "url", "https://example.com/a", "", nil)
	if err != nil {
		t.Fatalf("ComputeFromSource(url): %v", err)
	}
	localKey, err := ComputeFromSource(ctx, "local", "", "deadbeef", nil)
	if err != nil {
		t.Fatalf("ComputeFromSource(local): %v", err)
	}
	if urlKey == localKey {
		t.Errorf("expected url and local keys to differ")
	}
}
