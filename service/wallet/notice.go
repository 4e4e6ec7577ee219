package wallet

import (
	"sync"
	"time"
)

// NoticeKind tells the client how to style a notice.
type NoticeKind string

const (
	NoticeInfo  NoticeKind = "info"
	NoticeError NoticeKind = "error"
)

// DefaultNoticeTTL is how long a notice stays visible.
const DefaultNoticeTTL = 3 * time.Second

// Notice is a transient, self-clearing message.
type Notice struct {
	Kind      NoticeKind `json:"kind"`
	Message   string     `json:"message"`
	PostedAt  time.Time  `json:"postedAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// Expired reports whether the notice should no longer be shown at now.
func (n Notice) Expired(now time.Time) bool {
	return !now.Before(n.ExpiresAt)
}

// NoticeBoard holds at most one notice. Posting replaces the current notice
// and its expiry; there are no per-notice timers.
type NoticeBoard struct {
	mu      sync.Mutex
	ttl     time.Duration
	current *Notice
}

// NewNoticeBoard creates a board whose notices live for ttl.
func NewNoticeBoard(ttl time.Duration) *NoticeBoard {
	if ttl <= 0 {
		ttl = DefaultNoticeTTL
	}
	return &NoticeBoard{ttl: ttl}
}

// Post replaces the current notice.
func (b *NoticeBoard) Post(kind NoticeKind, message string, now time.Time) Notice {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := Notice{
		Kind:      kind,
		Message:   message,
		PostedAt:  now,
		ExpiresAt: now.Add(b.ttl),
	}
	b.current = &n
	return n
}

// Current returns the unexpired notice, if any.
func (b *NoticeBoard) Current(now time.Time) (Notice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil || b.current.Expired(now) {
		return Notice{}, false
	}
	return *b.current, true
}

// Tick drops the current notice once it has expired. It reports whether a
// notice was cleared.
func (b *NoticeBoard) Tick(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current != nil && b.current.Expired(now) {
		b.current = nil
		return true
	}
	return false
}
