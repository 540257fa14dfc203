package spool

import "strings"

// Message is an outbound message held in the spool.
type Message struct {
	// From is the envelope sender, transports may fall back to their own default.
	From string   `json:"from,omitempty"`
	To   []string `json:"to,omitempty"`
	Cc   []string `json:"cc,omitempty"`
	Bcc  []string `json:"bcc,omitempty"`
	// Subject is optional.
	Subject string `json:"subject,omitempty"`
	// Headers carries extra headers, e.g. "Reply-To" or "Content-Type".
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body"`
}

// Recipients returns every To, Cc and Bcc address in order, skipping blanks and duplicates.
func (m Message) Recipients() []string {
	seen := make(map[string]struct{}, len(m.To)+len(m.Cc)+len(m.Bcc))
	out := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	for _, group := range [][]string{m.To, m.Cc, m.Bcc} {
		for _, addr := range group {
			addr = strings.TrimSpace(addr)
			if addr == "" {
				continue
			}
			key := strings.ToLower(addr)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, addr)
		}
	}

	return out
}

// Validate checks that the message can be delivered to someone.
func (m Message) Validate() error {
	if len(m.Recipients()) == 0 {
		return ErrNoRecipients
	}

	return nil
}
