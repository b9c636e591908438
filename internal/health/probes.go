package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// NewDirProbe checks that dir exists, is a directory, and is writable. The
// certificate pool lives on a mounted volume, so a vanished or read-only
// mount should flip readiness.
func NewDirProbe(name, dir string) Probe {
	return NewProbe(name, func(ctx context.Context) error {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("stat %s: %w", dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}

		f, err := os.CreateTemp(dir, ".healthcheck-*")
		if err != nil {
			return fmt.Errorf("directory %s is not writable: %w", dir, err)
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(filepath.Clean(name))
		return nil
	})
}
