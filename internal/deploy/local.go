package deploy

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// localPublisher mirrors the artifact tree into a directory. Used for
// development environments and filesystem-mounted hosts.
type localPublisher struct {
	env Environment
}

func newLocalPublisher(env Environment) *localPublisher {
	return &localPublisher{env: env}
}

func (p *localPublisher) Publish(ctx context.Context, artifactDir string) (int, error) {
	return syncTree(ctx, artifactDir, p.env.Target)
}

func (p *localPublisher) PromoteFrom(ctx context.Context, source Environment) (int, error) {
	return syncTree(ctx, source.Target, p.env.Target)
}

// syncTree replaces dest with a copy of src and returns the file count.
func syncTree(ctx context.Context, src, dest string) (int, error) {
	if err := os.RemoveAll(dest); err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, err
	}

	count := 0
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if err := copyRegular(path, target); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

func copyRegular(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
