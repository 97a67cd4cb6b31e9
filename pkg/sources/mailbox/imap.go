package mailbox

import (
	"context"
	"fmt"

	"github.com/atomaton/atomaton/pkg/models"
	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

const (
	defaultIMAPTLSPort   = 993
	defaultIMAPPlainPort = 143
)

// IMAPDialer opens real IMAP sessions with go-imap.
type IMAPDialer struct{}

// NewIMAPDialer creates the production dialer.
func NewIMAPDialer() *IMAPDialer {
	return &IMAPDialer{}
}

// Dial connects and authenticates. TLS accounts use implicit TLS; everything
// else upgrades with STARTTLS.
func (d *IMAPDialer) Dial(_ context.Context, creds models.MailboxCredentials) (MailSession, error) {
	var (
		client *imapclient.Client
		err    error
	)

	if creds.TLS {
		client, err = imapclient.DialTLS(dialAddr(creds, defaultIMAPTLSPort), nil)
	} else {
		client, err = imapclient.DialStartTLS(dialAddr(creds, defaultIMAPPlainPort), nil)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to dial IMAP server: %w", err)
	}

	err = client.Login(creds.Username, creds.Password).Wait()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("IMAP login failed: %w", err)
	}

	return &imapSession{client: client}, nil
}

func dialAddr(creds models.MailboxCredentials, defaultPort int) string {
	port := creds.Port
	if port == 0 {
		port = defaultPort
	}

	return fmt.Sprintf("%s:%d", creds.Host, port)
}

type imapSession struct {
	client *imapclient.Client
}

func (s *imapSession) SelectInbox() error {
	_, err := s.client.Select("INBOX", nil).Wait()

	return err
}

func (s *imapSession) UnseenMessages() ([]MailMessage, error) {
	searchData, err := s.client.UIDSearch(&imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}, nil).Wait()
	if err != nil {
		return nil, err
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	buffers, err := s.client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope: true,
		UID:      true,
	}).Collect()
	if err != nil {
		return nil, err
	}

	messages := make([]MailMessage, 0, len(buffers))

	for _, buf := range buffers {
		msg := MailMessage{UID: uint32(buf.UID)}

		if env := buf.Envelope; env != nil {
			msg.MessageID = env.MessageID
			msg.Subject = env.Subject
			msg.Date = env.Date

			if len(env.From) > 0 {
				msg.From = env.From[0].Addr()
			}
		}

		messages = append(messages, msg)
	}

	return messages, nil
}

func (s *imapSession) MarkSeen(uid uint32) error {
	return s.client.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Flags:  []imap.Flag{imap.FlagSeen},
		Silent: true,
	}, nil).Close()
}

func (s *imapSession) Close() error {
	err := s.client.Logout().Wait()
	if err != nil {
		return s.client.Close()
	}

	return nil
}
