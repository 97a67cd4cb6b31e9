package models

import "time"

// Account types.
const (
	AccountTypeMailboxIMAP = "MAILBOX_IMAP"
)

// Account is a connected external account. Credentials hold the encrypted
// secret material; callers decrypt fields on demand with the credential
// crypto and never persist the plaintext.
type Account struct {
	ID          string         `json:"id"`
	Type        string         `json:"type" validate:"required"`
	Credentials map[string]any `json:"credentials,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// MailboxCredentials is the decrypted connection material for an IMAP
// account. Password arrives encrypted inside Account.Credentials.
type MailboxCredentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Host     string `json:"host"     validate:"required"`
	Port     int    `json:"port"`
	TLS      bool   `json:"tls"`
}
