package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jg-phare/claude-teams/internal/fslock"
	"github.com/jg-phare/claude-teams/internal/model"
	"github.com/jg-phare/claude-teams/internal/teamserr"
)

// Mailbox implements the inbox/messaging component: each inbox is a
// single JSON array file under
// teams/<team>/inboxes/<agent>.json, guarded by a directory-wide
// teams/<team>/inboxes/.lock.
type Mailbox struct {
	BaseDir string
}

// NewMailbox returns a Mailbox rooted at baseDir.
func NewMailbox(baseDir string) *Mailbox {
	return &Mailbox{BaseDir: baseDir}
}

// NowISO returns the current time as ISO-8601 with millisecond
// precision and a trailing "Z".
func NowISO() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

func (mb *Mailbox) inboxesDir(team string) string {
	return filepath.Join(mb.BaseDir, "teams", team, "inboxes")
}

func (mb *Mailbox) inboxPath(team, agent string) string {
	return filepath.Join(mb.inboxesDir(team), agent+".json")
}

func (mb *Mailbox) lock(team string) *fslock.Lock {
	return fslock.New(filepath.Join(mb.inboxesDir(team), ".lock"))
}

// EnsureInbox creates the inbox file with "[]" if it does not already
// exist. Idempotent.
func (mb *Mailbox) EnsureInbox(team, agent string) *teamserr.Error {
	dir := mb.inboxesDir(team)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return teamserr.Wrap(teamserr.IO, err, "create inboxes directory for %q", team)
	}
	path := mb.inboxPath(team, agent)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return teamserr.Wrap(teamserr.IO, err, "stat inbox %q/%q", team, agent)
	}
	if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
		return teamserr.Wrap(teamserr.IO, err, "create inbox %q/%q", team, agent)
	}
	return nil
}

func (mb *Mailbox) readAll(team, agent string) ([]model.InboxMessage, *teamserr.Error) {
	data, err := os.ReadFile(mb.inboxPath(team, agent))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, teamserr.Wrap(teamserr.IO, err, "read inbox %q/%q", team, agent)
	}
	var msgs []model.InboxMessage
	if jsonErr := json.Unmarshal(data, &msgs); jsonErr != nil {
		return nil, teamserr.Wrap(teamserr.IO, jsonErr, "parse inbox %q/%q", team, agent)
	}
	return msgs, nil
}

func (mb *Mailbox) writeAll(team, agent string, msgs []model.InboxMessage) *teamserr.Error {
	if msgs == nil {
		msgs = []model.InboxMessage{}
	}
	data, jsonErr := json.Marshal(msgs)
	if jsonErr != nil {
		return teamserr.Wrap(teamserr.IO, jsonErr, "marshal inbox %q/%q", team, agent)
	}
	if err := os.WriteFile(mb.inboxPath(team, agent), data, 0o644); err != nil {
		return teamserr.Wrap(teamserr.IO, err, "write inbox %q/%q", team, agent)
	}
	return nil
}

// ReadInbox returns the messages matching unreadOnly. When markAsRead
// is false this is a non-locking read. When true, it reads and
// rewrites under lock, flipping read=true for every message contained
// in the returned result (including already-read messages when
// unreadOnly is false: a harmless no-op re-flip, preserved
// deliberately rather than special-cased away).
func (mb *Mailbox) ReadInbox(team, agent string, unreadOnly, markAsRead bool) ([]model.InboxMessage, *teamserr.Error) {
	if !markAsRead {
		all, err := mb.readAll(team, agent)
		if err != nil {
			return nil, err
		}
		return filterMessages(all, unreadOnly), nil
	}

	var result []model.InboxMessage
	lockErr := fslock.WithLock(filepath.Join(mb.inboxesDir(team), ".lock"), func() error {
		all, err := mb.readAll(team, agent)
		if err != nil {
			return err
		}
		result = filterMessages(all, unreadOnly)

		if len(result) == 0 {
			return nil
		}

		inResult := make(map[int]bool, len(result))
		resultIdx := 0
		for i := range all {
			if resultIdx < len(result) && messageIdentical(all[i], result[resultIdx]) {
				inResult[i] = true
				resultIdx++
			}
		}
		for i := range all {
			if inResult[i] {
				all[i].Read = true
			}
		}
		return mb.writeAll(team, agent, all)
	})
	if lockErr != nil {
		if te, ok := lockErr.(*teamserr.Error); ok {
			return nil, te
		}
		return nil, teamserr.Wrap(teamserr.IO, lockErr, "lock inbox %q/%q", team, agent)
	}
	return result, nil
}

// messageIdentical compares messages by value identity for the
// "contained in the result" flip rule; since messages are never
// mutated except for the read flag, comparing ignoring Read is
// sufficient and avoids needing a synthetic per-message id.
func messageIdentical(a, b model.InboxMessage) bool {
	a.Read = false
	b.Read = false
	return a == b
}

func filterMessages(all []model.InboxMessage, unreadOnly bool) []model.InboxMessage {
	if !unreadOnly {
		out := make([]model.InboxMessage, len(all))
		copy(out, all)
		return out
	}
	var out []model.InboxMessage
	for _, m := range all {
		if !m.Read {
			out = append(out, m)
		}
	}
	return out
}

// AppendMessage appends msg to the recipient's inbox under lock,
// creating the inbox file first if needed.
func (mb *Mailbox) AppendMessage(team, agent string, msg model.InboxMessage) *teamserr.Error {
	if err := mb.EnsureInbox(team, agent); err != nil {
		return err
	}
	lockErr := fslock.WithLock(filepath.Join(mb.inboxesDir(team), ".lock"), func() error {
		all, err := mb.readAll(team, agent)
		if err != nil {
			return err
		}
		all = append(all, msg)
		return mb.writeAll(team, agent, all)
	})
	if lockErr != nil {
		if te, ok := lockErr.(*teamserr.Error); ok {
			return te
		}
		return teamserr.Wrap(teamserr.IO, lockErr, "append to inbox %q/%q", team, agent)
	}
	return nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// SendPlainMessage appends a free-text message with a summary and
// optional color.
func (mb *Mailbox) SendPlainMessage(team, from, to, text, summary string, color *string) *teamserr.Error {
	msg := model.InboxMessage{
		From:      from,
		Text:      text,
		Timestamp: NowISO(),
		Read:      false,
		Summary:   strPtr(summary),
		Color:     color,
	}
	return mb.AppendMessage(team, to, msg)
}

// SendStructuredMessage serializes payload as JSON into the message's
// Text field.
func (mb *Mailbox) SendStructuredMessage(team, from, to string, payload any, color *string) *teamserr.Error {
	data, err := json.Marshal(payload)
	if err != nil {
		return teamserr.Wrap(teamserr.IO, err, "marshal structured payload for %q/%q", team, to)
	}
	msg := model.InboxMessage{
		From:      from,
		Text:      string(data),
		Timestamp: NowISO(),
		Read:      false,
		Color:     color,
	}
	return mb.AppendMessage(team, to, msg)
}

// SendTaskAssignment notifies a task's new owner.
func (mb *Mailbox) SendTaskAssignment(team string, task *model.Task, assignedBy string) *teamserr.Error {
	owner := ""
	if task.Owner != nil {
		owner = *task.Owner
	}
	payload := model.NewTaskAssignment(task.ID, task.Subject, task.Description, assignedBy, NowISO())
	return mb.SendStructuredMessage(team, assignedBy, owner, payload, nil)
}

// SendShutdownRequest sends a shutdown_request payload and returns its
// requestId, of the form "shutdown-<ms-epoch>@<recipient>".
func (mb *Mailbox) SendShutdownRequest(team, recipient, reason string, nowMS int64) (string, *teamserr.Error) {
	requestID := shutdownRequestID(recipient, nowMS)
	payload := model.ShutdownRequest{
		Type:      "shutdown_request",
		RequestID: requestID,
		From:      "team-lead",
		Reason:    reason,
		Timestamp: NowISO(),
	}
	if err := mb.SendStructuredMessage(team, "team-lead", recipient, payload, nil); err != nil {
		return "", err
	}
	return requestID, nil
}

func shutdownRequestID(recipient string, nowMS int64) string {
	return "shutdown-" + strconv.FormatInt(nowMS, 10) + "@" + recipient
}
