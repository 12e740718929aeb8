package attachments

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore writes objects below a local directory. Keys map to paths under
// root, so root/uploads/... is served at <publicBase>/uploads/....
type DiskStore struct {
	root       string
	publicBase string
}

func NewDiskStore(root, publicBase string) (*DiskStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{root: abs, publicBase: publicBase}, nil
}

func (d *DiskStore) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst := filepath.Join(d.root, filepath.FromSlash(key))
	if !strings.HasPrefix(dst, d.root+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes upload dir", key)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	n, err := io.Copy(f, io.LimitReader(body, MaxImageBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}
	if n > MaxImageBytes {
		return "", ErrTooLarge
	}
	if size >= 0 && n != size {
		return "", fmt.Errorf("write object: got %d bytes, expected %d", n, size)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return "", fmt.Errorf("commit object: %w", err)
	}
	return joinURL(d.publicBase, key), nil
}

// Handler serves stored objects. Mount it at /uploads/*.
func (d *DiskStore) Handler() http.Handler {
	return http.FileServer(http.Dir(d.root))
}
