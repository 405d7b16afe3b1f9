package session

import (
	"errors"
	"fmt"

	"github.com/formpal/formpal/internal/itemstore"
)

// User-facing messages.
const (
	MsgNoMatch          = "No matching question found"
	MsgSaved            = "Saved"
	MsgDeleted          = "Deleted"
	MsgStoreUnavailable = "Storage is unavailable, nothing was changed"
)

// NoticeKind classifies a notice for display.
type NoticeKind int

const (
	// NoticeNone means there is nothing to show.
	NoticeNone NoticeKind = iota
	NoticeSuccess
	NoticeWarning
	NoticeError
)

// String returns a human-readable representation of the kind.
func (k NoticeKind) String() string {
	switch k {
	case NoticeNone:
		return "none"
	case NoticeSuccess:
		return "success"
	case NoticeWarning:
		return "warning"
	case NoticeError:
		return "error"
	default:
		return "unknown"
	}
}

// Notice is a transient message for the user.
type Notice struct {
	Kind    NoticeKind
	Message string
}

// Silent reports whether the notice should not be shown.
func (n Notice) Silent() bool {
	return n.Kind == NoticeNone
}

func filledNotice(count int) Notice {
	return Notice{Kind: NoticeSuccess, Message: fmt.Sprintf("Filled %d field(s)", count)}
}

func failureNotice(op string, err error) Notice {
	if errors.Is(err, itemstore.ErrStoreUnavailable) {
		return Notice{Kind: NoticeError, Message: MsgStoreUnavailable}
	}
	return Notice{Kind: NoticeError, Message: fmt.Sprintf("Failed to %s: %v", op, err)}
}
