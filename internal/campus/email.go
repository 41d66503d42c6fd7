package campus

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// SentEmail is one entry in the outgoing log.
type SentEmail struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	CC        string `json:"cc,omitempty"`
}

// InboxEmail is a message delivered to the student.
type InboxEmail struct {
	ID      string `json:"email_id"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Read    bool   `json:"read"`
}

// Email keeps the persistent sent log and the inbox.
type Email struct {
	sent   []SentEmail
	inbox  []InboxEmail
	nextID int
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewEmail creates an empty mailbox.
func NewEmail(logger *zap.Logger) *Email {
	return &Email{logger: logger}
}

// Send validates and records an outgoing email.
func (e *Email) Send(recipient, subject, body, cc string) ToolResult {
	switch {
	case recipient == "":
		return Failure("Recipient email address is required and must be a non-empty string.")
	case subject == "":
		return Failure("Email subject is required and must be a non-empty string.")
	case body == "":
		return Failure("Email body is required and must be a non-empty string.")
	case !strings.Contains(recipient, "@") || !strings.Contains(recipient, "."):
		return Failure("Invalid email address format.")
	}

	msg := SentEmail{
		Recipient: strings.TrimSpace(recipient),
		Subject:   strings.TrimSpace(subject),
		Body:      strings.TrimSpace(body),
		CC:        strings.TrimSpace(cc),
	}
	e.mu.Lock()
	e.sent = append(e.sent, msg)
	count := len(e.sent)
	e.mu.Unlock()

	e.logger.Debug("email sent", zap.String("recipient", msg.Recipient), zap.Int("count", count))
	return Success(fmt.Sprintf("Email has been successfully sent to %s.", recipient), map[string]any{
		"recipient":   msg.Recipient,
		"subject":     msg.Subject,
		"email_count": count,
	})
}

// Receive places a message in the inbox, assigning an id when missing.
func (e *Email) Receive(m InboxEmail) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	if m.ID == "" {
		m.ID = fmt.Sprintf("email_%03d", e.nextID)
	}
	e.inbox = append(e.inbox, m)
}

// ViewInbox lists inbox messages and marks them read.
func (e *Email) ViewInbox(unreadOnly bool) ToolResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	var listed []map[string]any
	var b strings.Builder
	for i := range e.inbox {
		m := &e.inbox[i]
		if unreadOnly && m.Read {
			continue
		}
		listed = append(listed, map[string]any{
			"email_id": m.ID, "from": m.From, "subject": m.Subject, "body": m.Body, "read": m.Read,
		})
		fmt.Fprintf(&b, "\n- [%s] From: %s | Subject: %s\n  %s", m.ID, m.From, m.Subject, m.Body)
		m.Read = true
	}
	if len(listed) == 0 {
		return Success("Your inbox has no messages to show.", map[string]any{"emails": []map[string]any{}})
	}
	return Success(fmt.Sprintf("You have %d message(s):%s", len(listed), b.String()), map[string]any{"emails": listed})
}

// Reply sends a response to the sender of an inbox message.
func (e *Email) Reply(emailID, body string) ToolResult {
	if emailID == "" || body == "" {
		return Failure("Both email_id and body are required.")
	}
	e.mu.RLock()
	var orig *InboxEmail
	for i := range e.inbox {
		if e.inbox[i].ID == emailID {
			m := e.inbox[i]
			orig = &m
			break
		}
	}
	e.mu.RUnlock()
	if orig == nil {
		return Failure("Email with ID '%s' not found in your inbox.", emailID)
	}
	subject := orig.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}
	return e.Send(orig.From, subject, body, "")
}

// Delete removes a message from the inbox.
func (e *Email) Delete(emailID string) ToolResult {
	if emailID == "" {
		return Failure("Email ID is required.")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, m := range e.inbox {
		if m.ID == emailID {
			e.inbox = append(e.inbox[:i], e.inbox[i+1:]...)
			return Success(fmt.Sprintf("Email '%s' has been deleted.", emailID), nil)
		}
	}
	return Failure("Email with ID '%s' not found in your inbox.", emailID)
}

// Sent returns a copy of the outgoing log, oldest first.
func (e *Email) Sent() []SentEmail {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]SentEmail, len(e.sent))
	copy(out, e.sent)
	return out
}

// Latest returns the most recently sent email.
func (e *Email) Latest() (SentEmail, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.sent) == 0 {
		return SentEmail{}, false
	}
	return e.sent[len(e.sent)-1], true
}
