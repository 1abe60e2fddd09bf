package blobstore

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
)

// upperRenderer uppercases the plaintext; enough to observe lazy
// derivation and caching without an image decoder.
type upperRenderer struct {
	calls int
}

func (r *upperRenderer) Render(ctx context.Context, rendition Rendition, plaintext io.Reader, out io.Writer) error {
	r.calls++
	data, err := io.ReadAll(plaintext)
	if err != nil {
		return err
	}
	_, err = out.Write(bytes.ToUpper(data))
	return err
}

func TestThumbCacheDerivesOnceAndCaches(t *testing.T) {
	r := &upperRenderer{}
	c, err := NewThumbCache(t.TempDir(), 0, r)
	if err != nil {
		t.Fatal(err)
	}

	open := func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("jojo")), nil
	}

	for i := 0; i < 2; i++ {
		rc, err := c.Open(context.Background(), "deadbeef", "64x64", open)
		if err != nil {
			t.Fatal(err)
		}
		got, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "JOJO" {
			t.Errorf("rendition = %q, want JOJO", got)
		}
	}
	if r.calls != 1 {
		t.Errorf("renderer ran %d times, want 1 (second read should hit the cache)", r.calls)
	}
}

func TestThumbCacheInvalidate(t *testing.T) {
	r := &upperRenderer{}
	c, err := NewThumbCache(t.TempDir(), 0, r)
	if err != nil {
		t.Fatal(err)
	}
	open := func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("x")), nil
	}

	rc, err := c.Open(context.Background(), "cafe", "64x64", open)
	if err != nil {
		t.Fatal(err)
	}
	rc.Close()
	if err := c.Invalidate("cafe"); err != nil {
		t.Fatal(err)
	}
	rc, err = c.Open(context.Background(), "cafe", "64x64", open)
	if err != nil {
		t.Fatal(err)
	}
	rc.Close()
	if r.calls != 2 {
		t.Errorf("renderer ran %d times, want 2 after invalidation", r.calls)
	}
}
