package domain

import "time"

// LinkStatus is the recorded health of an externally hosted URL.
type LinkStatus string

// Link health states. Checking is transient within one scanner run and is
// never persisted.
const (
	LinkUnknown  LinkStatus = "unknown"
	LinkChecking LinkStatus = "checking"
	LinkOK       LinkStatus = "ok"
	LinkBroken   LinkStatus = "broken"
)

// Link is the health record of one external URL, keyed by the owning
// catalog record.
type Link struct {
	ID        string // owning record ID
	URL       string
	Status    LinkStatus
	Error     string // diagnostics for broken links, empty otherwise
	CheckedAt time.Time
}
