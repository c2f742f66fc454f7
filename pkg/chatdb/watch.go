package chatdb

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// watchDebounce batches the burst of WAL writes one Messages commit produces
// into a single re-query.
const watchDebounce = 500 * time.Millisecond

// Watcher delivers newly stored messages as they appear in the database. It
// watches the database directory for WAL activity and re-runs the
// messages-after query from its cursor, so every message is delivered at most
// once and in date order.
type Watcher struct {
	db  *DB
	fsw *fsnotify.Watcher
	log zerolog.Logger

	cursor   float64
	messages chan []*Message
	errs     chan error
	stop     chan struct{}
	done     chan struct{}
}

// Watch starts delivering messages with a date strictly greater than the
// given Unix timestamp. Messages already in the store past the cursor are
// delivered in a first batch without waiting for file activity.
func (d *DB) Watch(afterUnixSeconds float64) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// The WAL and SHM files appear and disappear next to chat.db, so the
	// directory is watched rather than any single file.
	if err = fsw.Add(filepath.Dir(d.path)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch database directory: %w", err)
	}

	w := &Watcher{
		db:       d,
		fsw:      fsw,
		log:      d.log.With().Str("component", "watcher").Logger(),
		cursor:   afterUnixSeconds,
		messages: make(chan []*Message, 8),
		errs:     make(chan error, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Messages is the channel of new message batches, each in ascending date
// order. It is closed when the watcher stops.
func (w *Watcher) Messages() <-chan []*Message {
	return w.messages
}

// Errors reports non-fatal poll and watch errors. The watcher keeps running
// after reporting one.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	close(w.stop)
	<-w.done
	return w.fsw.Close()
}

func (w *Watcher) run() {
	defer close(w.done)
	defer close(w.messages)

	// Deliver anything already past the cursor before the first event.
	w.poll()

	var debounce *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(watchDebounce)
				fire = debounce.C
			} else {
				debounce.Reset(watchDebounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.reportError(fmt.Errorf("file watcher error: %w", err))
		case <-fire:
			debounce = nil
			fire = nil
			w.poll()
		case <-w.stop:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
		return false
	}
	base := filepath.Base(event.Name)
	dbBase := filepath.Base(w.db.path)
	return base == dbBase || base == dbBase+"-wal" || base == dbBase+"-shm"
}

func (w *Watcher) poll() {
	batch, err := w.db.MessagesAfter(context.Background(), w.cursor, 0)
	if err != nil {
		w.reportError(err)
		return
	}
	if len(batch) == 0 {
		return
	}
	w.cursor = batch[len(batch)-1].Date
	w.log.Debug().Int("count", len(batch)).Float64("cursor", w.cursor).
		Msg("Delivering new messages")

	select {
	case w.messages <- batch:
	case <-w.stop:
	}
}

func (w *Watcher) reportError(err error) {
	w.log.Warn().Err(err).Msg("Watcher poll failed")
	select {
	case w.errs <- err:
	default:
	}
}
