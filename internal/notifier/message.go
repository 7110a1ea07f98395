package notifier

import (
	"bytes"
	"encoding/base64"
	"mime"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

const lineLength = 76

// buildMessage renders a UTF-8 plain-text RFC 5322 message with CRLF line
// endings. The subject is RFC 2047 encoded and the body base64 encoded so
// Korean text survives any relay.
func buildMessage(from, to, subject, body string, date time.Time) []byte {
	var b bytes.Buffer
	header := func(name, value string) {
		b.WriteString(name + ": " + value + "\r\n")
	}

	header("From", from)
	header("To", to)
	header("Subject", mime.BEncoding.Encode("UTF-8", subject))
	header("Date", date.Format(time.RFC1123Z))
	header("Message-ID", messageID(from))
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=UTF-8")
	header("Content-Transfer-Encoding", "base64")
	b.WriteString("\r\n")

	encoded := base64.StdEncoding.EncodeToString([]byte(body))
	for len(encoded) > lineLength {
		b.WriteString(encoded[:lineLength] + "\r\n")
		encoded = encoded[lineLength:]
	}
	if encoded != "" {
		b.WriteString(encoded + "\r\n")
	}
	return b.Bytes()
}

func messageID(from string) string {
	domain := "notice-watch.local"
	if addr, err := mail.ParseAddress(from); err == nil {
		from = addr.Address
	}
	if _, d, ok := strings.Cut(from, "@"); ok && d != "" {
		domain = d
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}
