package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Ignore any file greater than 16 MB
const maxImportSize = 16 << (10 * 2)

func findImages(ctx context.Context, base string) (<-chan string, <-chan error) {
	out := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		errc <- filepath.Walk(base, func(file string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}

			// Ignore any hidden files or directories, otherwise we end up fighting with things like Spotlight, etc.
			if info.Name()[0] == '.' && file != base {
				if info.Mode().IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			// Ignore anything that isn't a normal file
			if !info.Mode().IsRegular() || info.Size() > maxImportSize {
				return nil
			}

			if !strings.EqualFold(filepath.Ext(file), ".png") {
				return nil
			}

			select {
			case out <- file:
			case <-ctx.Done():
				return errors.New("walk cancelled")
			}

			return nil
		})
	}()
	return out, errc
}

func (s *Store) importWorker(base string, in <-chan string, logger zerolog.Logger) <-chan error {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		for file := range in {
			rel, err := filepath.Rel(base, file)
			if err != nil {
				errc <- err
				return
			}

			img, err := s.importFile(filepath.ToSlash(rel), file)
			if err != nil {
				// A corrupt image shouldn't stop the rest being imported
				logger.Warn().Err(err).Str("file", file).Msg("skipping image")
				continue
			}
			logger.Debug().Str("name", img.Name).Int("width", img.Width).Int("height", img.Height).Msg("imported image")
		}
	}()
	return errc
}

func (s *Store) importFile(name, file string) (*Image, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return s.Put(name, f)
}

func waitForPipeline(errs ...<-chan error) error {
	errc := mergeErrors(errs...)
	for err := range errc {
		if err != nil {
			return err
		}
	}
	return nil
}

func mergeErrors(cs ...<-chan error) <-chan error {
	var wg sync.WaitGroup
	out := make(chan error, len(cs))
	wg.Add(len(cs))
	for _, c := range cs {
		go func(c <-chan error) {
			for n := range c {
				out <- n
			}
			wg.Done()
		}(c)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// Import walks the directory path and stores every PNG image found, named
// by its slash separated path relative to path. Hidden files and
// directories are skipped, as are images that fail to parse.
func (s *Store) Import(path string, workers int, logger zerolog.Logger) error {
	dir, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	if workers < 1 {
		workers = 1
	}

	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	var errcList []<-chan error

	files, errc := findImages(ctx, dir)
	errcList = append(errcList, errc)

	for i := 0; i < workers; i++ {
		errcList = append(errcList, s.importWorker(dir, files, logger))
	}

	return waitForPipeline(errcList...)
}
