package chatdb

import (
	"context"
	"fmt"
)

// defaultBatchSize matches the batch size the incremental importer uses when
// none is configured.
const defaultBatchSize = 500

// StreamMessages walks the store in cursor-paged batches so the whole corpus
// never has to sit in memory at once. Paging starts strictly after the given
// Unix timestamp and advances the cursor to the newest date seen in each
// batch; a short batch ends the walk. Returning an error from fn aborts the
// stream and surfaces that error.
func (d *DB) StreamMessages(ctx context.Context, afterUnixSeconds float64, batchSize int, fn func(*Message) error) error {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	cursor := afterUnixSeconds
	for {
		batch, err := d.MessagesAfter(ctx, cursor, batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		advanced := false
		for _, msg := range batch {
			if err = fn(msg); err != nil {
				return err
			}
			if msg.Date > cursor {
				cursor = msg.Date
				advanced = true
			}
		}

		if len(batch) < batchSize {
			return nil
		}
		// A full batch that failed to move the cursor would loop forever
		// re-reading the same rows; bail out instead.
		if !advanced {
			return fmt.Errorf("message stream stalled at cursor %v", cursor)
		}
	}
}
