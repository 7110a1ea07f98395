package notifier

import (
	"context"
	"time"

	"github.com/pfrederiksen/notice-watch/internal/notice"
)

// Notifier defines the interface for delivering a digest of new notices
type Notifier interface {
	// Notify delivers one digest for the given notices, checked at checkedAt.
	Notify(ctx context.Context, notices []notice.Notice, checkedAt time.Time) error
}
