package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// WatchConfig configures an inbox directory watch.
type WatchConfig struct {
	Roots       []string      // directories to watch (recursive)
	InitialScan bool          // if true, walk roots and emit existing files
	Debounce    time.Duration // coalesce rapid write/rename bursts
}

// StartWatcher emits the paths of statement files created or rewritten under
// the configured roots. Both channels close when ctx is done.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan string, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		logger.Error("watcher start failed: no roots provided")
		return nil, nil, errors.New("no roots provided")
	}
	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to create fsnotify watcher", "error", err)
		return nil, nil, err
	}

	var initial []string
	addDir := func(root string) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if path != root && IsHidden(path) {
					return filepath.SkipDir
				}
				return w.Add(path)
			}
			if cfg.InitialScan && candidate(path) {
				initial = append(initial, path)
			}
			return nil
		})
	}
	for _, r := range cfg.Roots {
		if err := addDir(r); err != nil {
			logger.Error("failed to add root directory", "root", r, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
	}

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("failed to close fsnotify watcher", "error", err)
			}
		}()

		emit := func(p string) bool {
			select {
			case evCh <- p:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, p := range initial {
			if !emit(p) {
				return
			}
		}

		var (
			mu      sync.Mutex
			pending = map[string]struct{}{}
			flush   = make(chan struct{}, 1)
			timer   *time.Timer
		)
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()
		sendPending := func() {
			mu.Lock()
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
				delete(pending, p)
			}
			mu.Unlock()
			for _, p := range batch {
				if !emit(p) {
					return
				}
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-flush:
				sendPending()
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op.Has(fsnotify.Create) {
					if st, err := os.Stat(e.Name); err == nil && st.IsDir() && !IsHidden(e.Name) {
						if err := addDir(e.Name); err != nil {
							logger.Warn("failed to add new directory to watcher", "path", e.Name, "error", err)
						}
						continue
					}
				}
				if !candidate(e.Name) || !(e.Op.Has(fsnotify.Create) || e.Op.Has(fsnotify.Write) || e.Op.Has(fsnotify.Rename)) {
					continue
				}
				mu.Lock()
				pending[e.Name] = struct{}{}
				mu.Unlock()
				if cfg.Debounce <= 0 {
					sendPending()
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(cfg.Debounce, func() {
					select {
					case flush <- struct{}{}:
					default:
					}
				})
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watcher error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

func candidate(path string) bool {
	return AllowedExt(filepath.Ext(path)) && !IsHidden(path)
}

// Inbox ingests files dropped under root/<account_id>/.
type Inbox struct {
	Root     string
	Ingestor Ingestor
	Debounce time.Duration
	logger   *slog.Logger
}

func NewInbox(root string, ingestor Ingestor, logger *slog.Logger) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{
		Root:     root,
		Ingestor: ingestor,
		Debounce: 500 * time.Millisecond,
		logger:   logger,
	}
}

// AccountFor derives the owning account from the first directory below root.
func (in *Inbox) AccountFor(path string) (uuid.UUID, error) {
	rel, err := filepath.Rel(in.Root, path)
	if err != nil {
		return uuid.Nil, err
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 || parts[0] == ".." {
		return uuid.Nil, fmt.Errorf("%s is not inside an account directory", path)
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, fmt.Errorf("inbox directory %q is not an account id", parts[0])
	}
	return id, nil
}

// Run blocks until ctx is done, uploading every file the watcher reports.
func (in *Inbox) Run(ctx context.Context) error {
	if err := os.MkdirAll(in.Root, 0o755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}
	events, errs, err := StartWatcher(ctx, WatchConfig{
		Roots:       []string{in.Root},
		InitialScan: true,
		Debounce:    in.Debounce,
	}, in.logger)
	if err != nil {
		return err
	}
	in.logger.Info("inbox watcher started", "root", in.Root)

	for {
		select {
		case <-ctx.Done():
			in.logger.Info("inbox watcher stopped", "root", in.Root)
			return nil
		case err, ok := <-errs:
			if ok {
				in.logger.Warn("inbox watcher error", "error", err)
			}
		case path, ok := <-events:
			if !ok {
				return nil
			}
			in.handle(ctx, path)
		}
	}
}

func (in *Inbox) handle(ctx context.Context, path string) {
	accountID, err := in.AccountFor(path)
	if err != nil {
		in.logger.Warn("ignoring inbox file", "path", path, "error", err)
		return
	}
	res, err := in.Ingestor.IngestPath(ctx, accountID, path)
	if err != nil {
		in.logger.Error("inbox ingest failed", "path", path, "account_id", accountID, "error", err)
		return
	}
	in.logger.Info("inbox file ingested", "path", path, "file_id", res.FileID, "deduplicated", res.Deduplicated)
}
