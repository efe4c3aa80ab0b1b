package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local serves reports straight from the pipeline output directory and hands
// out backend-relative /outputs/ URLs, matching the development setup where
// the HTTP layer serves that directory itself.
type Local struct {
	dir string
}

func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Local{dir: dir}, nil
}

// Upload places the file into the output directory under the key's base name
// and returns its backend-relative URL. A file already rendered into the
// output directory is left in place.
func (l *Local) Upload(ctx context.Context, localPath, key string) (string, error) {
	name := filepath.Base(key)
	dst := filepath.Join(l.dir, name)

	if !samePath(localPath, dst) {
		if err := copyFile(localPath, dst); err != nil {
			return "", err
		}
	}
	return "/outputs/" + name, nil
}

// UploadAndCleanup uploads and removes the source file when it lives outside
// the output directory.
func (l *Local) UploadAndCleanup(ctx context.Context, localPath, key string) (string, error) {
	url, err := l.Upload(ctx, localPath, key)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(l.dir, filepath.Base(key))
	if !samePath(localPath, dst) {
		if err := os.Remove(localPath); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to remove local file %s: %v\n", localPath, err)
		}
	}
	return url, nil
}

// Dir returns the directory reports are served from.
func (l *Local) Dir() string { return l.dir }

func samePath(a, b string) bool {
	aa, errA := filepath.Abs(a)
	bb, errB := filepath.Abs(b)
	return errA == nil && errB == nil && aa == bb
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
