package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/pfrederiksen/notice-watch/internal/notice"
)

// DefaultSubjectPrefix tags digest subjects with the board's name.
const DefaultSubjectPrefix = "[한양대 경영대학원 공지]"

// FormatDigest builds the subject and plain-text body of a digest. Each
// notice is listed as "- [category] date | title" with its URL on the next
// line; category and date are left out when absent. The check time is shown
// in loc (UTC when nil).
func FormatDigest(notices []notice.Notice, checkedAt time.Time, loc *time.Location, prefix string) (subject, body string) {
	if loc == nil {
		loc = time.UTC
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	subject = fmt.Sprintf("%s 새 글 %d개", prefix, len(notices))

	lines := make([]string, 0, len(notices)*2+4)
	lines = append(lines, fmt.Sprintf("새 공지 %d개가 있습니다.", len(notices)), "")
	for _, n := range notices {
		lines = append(lines, formatEntry(n), "  "+n.URL)
	}
	lines = append(lines, "", fmt.Sprintf("(자동 확인 시간: %s)", checkedAt.In(loc).Format("2006-01-02 15:04 MST")))

	return subject, strings.Join(lines, "\n")
}

func formatEntry(n notice.Notice) string {
	var b strings.Builder
	b.WriteString("- ")
	if n.Category != "" {
		b.WriteString("[" + n.Category + "] ")
	}
	if n.Date != "" {
		b.WriteString(n.Date + " | ")
	}
	b.WriteString(n.Title)
	return b.String()
}
