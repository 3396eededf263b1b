package email

import (
	"time"

	"github.com/nhle/inbox-companion/internal/model"
)

// SearchCriteria narrows a UID search. Zero values are not sent.
type SearchCriteria struct {
	// Since is applied with day granularity by the server.
	Since  time.Time
	Unseen bool
}

// RawMessage is one message fetched with its full RFC 5322 source.
type RawMessage struct {
	UID          uint32
	Flags        model.Flags
	InternalDate time.Time
	Raw          []byte
}
