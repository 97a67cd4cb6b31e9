// Package mailbox implements the IMAP polling adapter: one polling loop per
// connected mailbox account, turning unseen messages into queued workflow
// executions exactly once each.
package mailbox

import (
	"context"
	"time"

	"github.com/atomaton/atomaton/pkg/models"
)

// MailMessage is the header set the poller extracts from an unseen message.
type MailMessage struct {
	UID       uint32
	MessageID string
	Subject   string
	From      string
	Date      time.Time
}

// MailSession is one authenticated IMAP connection. The poller opens a fresh
// session per cycle and closes it before sleeping.
type MailSession interface {
	SelectInbox() error
	UnseenMessages() ([]MailMessage, error)
	MarkSeen(uid uint32) error
	Close() error
}

// Dialer opens an authenticated mail session. The production implementation
// wraps go-imap; tests inject fakes.
type Dialer interface {
	Dial(ctx context.Context, creds models.MailboxCredentials) (MailSession, error)
}
