package smtp

import (
	"bytes"
	"mime"
	"net/textproto"
	"sort"
	"strings"
	"time"

	"github.com/velmie/spool"
)

var reservedHeaders = map[string]struct{}{
	"From":    {},
	"To":      {},
	"Cc":      {},
	"Bcc":     {},
	"Subject": {},
	"Date":    {},
}

// formatMessage renders msg as an RFC 5322 message. Bcc addresses are never written.
func formatMessage(msg spool.Message, from string, now time.Time) []byte {
	var buf bytes.Buffer

	writeHeader(&buf, "From", from)
	if len(msg.To) > 0 {
		writeHeader(&buf, "To", strings.Join(msg.To, ", "))
	}
	if len(msg.Cc) > 0 {
		writeHeader(&buf, "Cc", strings.Join(msg.Cc, ", "))
	}
	if msg.Subject != "" {
		writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	}
	writeHeader(&buf, "Date", now.Format(time.RFC1123Z))

	extra := make(map[string]string, len(msg.Headers))
	for key, value := range msg.Headers {
		key = strings.TrimSpace(key)
		if !validFieldName(key) {
			continue
		}
		key = textproto.CanonicalMIMEHeaderKey(key)
		if _, ok := reservedHeaders[key]; ok {
			continue
		}
		extra[key] = value
	}
	if _, ok := extra["Mime-Version"]; !ok {
		extra["Mime-Version"] = "1.0"
	}
	if _, ok := extra["Content-Type"]; !ok {
		extra["Content-Type"] = "text/plain; charset=UTF-8"
	}

	keys := make([]string, 0, len(extra))
	for key := range extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		writeHeader(&buf, key, extra[key])
	}

	buf.WriteString("\r\n")
	buf.WriteString(msg.Body)

	return buf.Bytes()
}

// validFieldName reports whether key is a non-empty RFC 5322 field name: printable
// ASCII without spaces or colons.
func validFieldName(key string) bool {
	if key == "" {
		return false
	}
	for i := 0; i < len(key); i++ {
		if c := key[i]; c < 33 || c > 126 || c == ':' {
			return false
		}
	}

	return true
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	// header injection guard
	value = strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}
