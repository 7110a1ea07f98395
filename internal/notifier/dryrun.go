package notifier

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pfrederiksen/notice-watch/internal/notice"
)

// DryRunNotifier prints the digest that would be emailed without sending it
type DryRunNotifier struct {
	out      io.Writer
	location *time.Location
	prefix   string
}

// NewDryRunNotifier creates a dry-run notifier writing to out.
func NewDryRunNotifier(out io.Writer, location *time.Location, subjectPrefix string) *DryRunNotifier {
	return &DryRunNotifier{out: out, location: location, prefix: subjectPrefix}
}

// Notify prints the digest subject and body
func (n *DryRunNotifier) Notify(_ context.Context, notices []notice.Notice, checkedAt time.Time) error {
	subject, body := FormatDigest(notices, checkedAt, n.location, n.prefix)
	if _, err := fmt.Fprintf(n.out, "--- Subject: %s ---\n%s\n", subject, body); err != nil {
		return fmt.Errorf("writing dry-run digest: %w", err)
	}
	return nil
}
