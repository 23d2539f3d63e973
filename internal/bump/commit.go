package bump

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cenk/backoff"
	"github.com/leapstack-labs/easyrelease/internal/manifest"
)

// commit writes every document next to its target and renames the temp
// files into place. If a rename fails, the targets already replaced are
// restored from the documents' original bytes.
func (p *Propagator) commit(docs []*manifest.Document) ([]string, error) {
	temps := make([]string, len(docs))
	removeTemps := func(from int) {
		for _, tmp := range temps[from:] {
			if tmp != "" {
				_ = os.Remove(tmp)
			}
		}
	}

	for i, doc := range docs {
		tmp, err := writeTemp(doc.Path(), doc.Bytes())
		if err != nil {
			removeTemps(0)
			return nil, manifest.WriteErr(doc.Path(), err)
		}
		temps[i] = tmp
	}

	written := make([]string, 0, len(docs))
	for i, doc := range docs {
		if err := p.renameWithRetry(temps[i], doc.Path()); err != nil {
			removeTemps(i)
			if rbErr := p.rollback(docs[:i]); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
			return nil, manifest.WriteErr(doc.Path(), err)
		}
		written = append(written, doc.Path())
	}
	return written, nil
}

// rollback restores the original content of docs.
func (p *Propagator) rollback(docs []*manifest.Document) error {
	var errs []error
	for _, doc := range docs {
		tmp, err := writeTemp(doc.Path(), doc.Original())
		if err == nil {
			err = p.renameWithRetry(tmp, doc.Path())
			if err != nil {
				_ = os.Remove(tmp)
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", doc.Path(), err))
			continue
		}
		p.logger.Debug("restored manifest", slog.String("path", doc.Path()))
	}
	return errors.Join(errs...)
}

func (p *Propagator) renameWithRetry(from, to string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.delay
	b.MaxInterval = 10 * p.delay
	b.MaxElapsedTime = 5 * time.Second
	b.Reset()

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := p.rename(from, to)
		if err != nil {
			p.logger.Debug("rename failed",
				slog.String("path", to),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
		}
		return err
	}, backoff.WithMaxRetries(b, p.retries))
}

// writeTemp writes content to a new hidden file in target's directory and
// gives it target's permissions.
func writeTemp(target string, content []byte) (string, error) {
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(target); err == nil {
		mode = info.Mode().Perm()
	}

	f, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return "", err
	}
	name := f.Name()
	fail := func(err error) (string, error) {
		_ = f.Close()
		_ = os.Remove(name)
		return "", err
	}

	if _, err := f.Write(content); err != nil {
		return fail(err)
	}
	if err := f.Sync(); err != nil {
		return fail(err)
	}
	if err := f.Chmod(mode); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

func renameFile(from, to string) error {
	return os.Rename(from, to)
}
