package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ovaphlow/pitchfork/service-secrets/internal/credential"
	"github.com/ovaphlow/pitchfork/service-secrets/internal/credential/entity"
)

var ErrFileExists = errors.New("env file already exists")

// FileSink writes the bundle as an env file readable by the owner only.
type FileSink struct {
	Path  string
	Force bool
}

func (f *FileSink) Name() string { return "file" }

// Preflight fails with ErrFileExists when Store would refuse to overwrite.
func (f *FileSink) Preflight() error {
	if f.Force {
		return nil
	}
	_, err := os.Lstat(f.Path)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrFileExists, f.Path)
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("failed to stat env file: %w", err)
	}
}

func (f *FileSink) Store(ctx context.Context, b *entity.Bundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data := []byte(credential.RenderEnv(b))
	if !f.Force {
		fh, err := os.OpenFile(f.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				return fmt.Errorf("%w: %s", ErrFileExists, f.Path)
			}
			return fmt.Errorf("failed to create env file: %w", err)
		}
		if _, err := fh.Write(data); err != nil {
			fh.Close()
			os.Remove(f.Path)
			return fmt.Errorf("failed to write env file: %w", err)
		}
		return fh.Close()
	}

	// replace through a temp file so readers never see a half-written file
	tmp, err := os.CreateTemp(dir, ".secrets-*.env")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write env file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close env file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("failed to replace env file: %w", err)
	}
	return nil
}
