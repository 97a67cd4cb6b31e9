package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/atomaton/atomaton/pkg/crypto"
	"github.com/atomaton/atomaton/pkg/models"
	"github.com/atomaton/atomaton/pkg/persistence"
	"github.com/atomaton/atomaton/pkg/queue"
	"github.com/google/uuid"
)

const (
	defaultIntervalMinutes = 5
	defaultBackoffBase     = 1 * time.Second
	// maxConnectRetries bounds consecutive failed poll cycles. Exceeding it
	// fail-stops the account's polling rather than retrying forever.
	maxConnectRetries = 5
)

// Manager is the registry of active mailbox pollers, keyed by account id.
type Manager struct {
	persist persistence.Persistence
	queue   queue.ExecutionQueue
	dialer  Dialer
	cipher  *crypto.Cipher
	logger  *slog.Logger

	backoffBase time.Duration
	sleep       func(time.Duration)

	mu      sync.Mutex
	pollers map[string]*poller
}

type poller struct {
	accountID string
	interval  time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewManager creates a manager with the real clock.
func NewManager(
	persist persistence.Persistence,
	executionQueue queue.ExecutionQueue,
	dialer Dialer,
	cipher *crypto.Cipher,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		persist:     persist,
		queue:       executionQueue,
		dialer:      dialer,
		cipher:      cipher,
		logger:      logger.With("module", "mailbox_poller"),
		backoffBase: defaultBackoffBase,
		sleep:       time.Sleep,
		pollers:     make(map[string]*poller),
	}
}

// SetRetryPolicy overrides the reconnect backoff base and sleep function.
// Tests use it to record waits instead of blocking.
func (m *Manager) SetRetryPolicy(base time.Duration, sleep func(time.Duration)) {
	m.backoffBase = base
	m.sleep = sleep
}

// Start begins polling an account. Idempotent: starting an account that is
// already polling is a no-op.
func (m *Manager) Start(ctx context.Context, accountID string, intervalMinutes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, running := m.pollers[accountID]; running {
		m.logger.DebugContext(ctx, "Mailbox poller already running", "account_id", accountID)

		return nil
	}

	if intervalMinutes <= 0 {
		intervalMinutes = defaultIntervalMinutes
	}

	pollCtx, cancel := context.WithCancel(ctx)

	p := &poller{
		accountID: accountID,
		interval:  time.Duration(intervalMinutes) * time.Minute,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	m.pollers[accountID] = p

	m.logger.InfoContext(ctx, "Starting mailbox poller",
		"account_id", accountID,
		"interval_minutes", intervalMinutes)

	go m.run(pollCtx, p)

	return nil
}

// Stop cancels an account's polling loop and waits for it to exit. Safe to
// call when nothing is running.
func (m *Manager) Stop(accountID string) {
	m.mu.Lock()
	p, ok := m.pollers[accountID]
	m.mu.Unlock()

	if !ok {
		return
	}

	p.cancel()
	<-p.done
}

// StopAll stops every active poller.
func (m *Manager) StopAll() {
	m.mu.Lock()

	active := make([]string, 0, len(m.pollers))
	for id := range m.pollers {
		active = append(active, id)
	}

	m.mu.Unlock()

	for _, id := range active {
		m.Stop(id)
	}
}

// Running reports whether an account currently has an active poller.
func (m *Manager) Running(accountID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.pollers[accountID]

	return ok
}

// run is the per-account polling loop. A failed cycle retries with
// base * 2^attempt backoff; more than maxConnectRetries consecutive failures
// stop the account entirely.
func (m *Manager) run(ctx context.Context, p *poller) {
	defer close(p.done)
	defer m.remove(p.accountID)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	failures := 0

	for {
		err := m.pollOnce(ctx, p.accountID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			failures++
			if failures > maxConnectRetries {
				m.logger.Error("Mailbox polling failed repeatedly, stopping account",
					"account_id", p.accountID,
					"failures", failures-1,
					"error", err)

				return
			}

			wait := m.backoffBase * (1 << (failures - 1))
			m.logger.Warn("Mailbox poll cycle failed, backing off",
				"account_id", p.accountID,
				"attempt", failures,
				"wait", wait,
				"error", err)
			m.sleep(wait)

			if ctx.Err() != nil {
				return
			}

			continue
		}

		failures = 0

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) remove(accountID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.pollers, accountID)
}

// pollOnce is one cycle of the sequential poll state machine: connect,
// select inbox, search unseen, then per message dedup-check, enqueue, and
// mark seen.
func (m *Manager) pollOnce(ctx context.Context, accountID string) error {
	trigger, err := m.triggerForAccount(ctx, accountID)
	if err != nil {
		return err
	}

	account, err := m.persist.AccountRepository().AccountByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}

	creds, err := m.credentials(account)
	if err != nil {
		return err
	}

	session, err := m.dialer.Dial(ctx, creds)
	if err != nil {
		return fmt.Errorf("failed to connect to mailbox: %w", err)
	}

	defer func() {
		closeErr := session.Close()
		if closeErr != nil {
			m.logger.Warn("Failed to close mailbox session", "account_id", accountID, "error", closeErr)
		}
	}()

	err = session.SelectInbox()
	if err != nil {
		return fmt.Errorf("failed to select inbox: %w", err)
	}

	messages, err := session.UnseenMessages()
	if err != nil {
		return fmt.Errorf("failed to search unseen messages: %w", err)
	}

	for _, msg := range messages {
		err = m.handleMessage(ctx, accountID, trigger, session, msg)
		if err != nil {
			return err
		}
	}

	return nil
}

// handleMessage enqueues one message unless an earlier cycle already did.
// Either way the message ends up marked seen.
func (m *Manager) handleMessage(
	ctx context.Context,
	accountID string,
	trigger *models.Trigger,
	session MailSession,
	msg MailMessage,
) error {
	messageID := msg.MessageID
	if messageID == "" {
		messageID = fmt.Sprintf("uid:%d", msg.UID)
	}

	_, err := m.persist.LogRepository().FindLogBySourceMessage(ctx, models.LogSourceMailbox, messageID)
	if err == nil {
		m.logger.DebugContext(ctx, "Message already enqueued, skipping",
			"account_id", accountID,
			"message_id", messageID)

		return session.MarkSeen(msg.UID)
	}

	if !persistence.IsLogNotFound(err) {
		return fmt.Errorf("failed to check message dedup: %w", err)
	}

	workflowCtx := &models.WorkflowContext{
		TriggerID:   trigger.ID,
		WorkflowID:  trigger.WorkflowID,
		ExecutionID: uuid.New().String(),
		Data: map[string]any{
			"subject":   msg.Subject,
			"from":      msg.From,
			"date":      msg.Date.UTC().Format(time.RFC3339),
			"messageId": messageID,
			"accountId": accountID,
		},
	}

	err = m.queue.Enqueue(ctx, workflowCtx)
	if err != nil {
		return fmt.Errorf("failed to enqueue execution: %w", err)
	}

	// The record's message field carries the message id: it is the dedup key
	// FindLogBySourceMessage matches on the next cycle.
	record := &models.LogRecord{
		ID:          uuid.New().String(),
		WorkflowID:  trigger.WorkflowID,
		TriggerID:   trigger.ID,
		Status:      models.LogStatusEnqueued,
		Message:     messageID,
		Context:     workflowCtx.Data,
		Source:      models.LogSourceMailbox,
		ExecutionID: workflowCtx.ExecutionID,
		CreatedAt:   time.Now().UTC(),
	}

	err = m.persist.LogRepository().AppendLog(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to append enqueue record: %w", err)
	}

	m.logger.InfoContext(ctx, "Mailbox message enqueued",
		"account_id", accountID,
		"message_id", messageID,
		"execution_id", workflowCtx.ExecutionID)

	return session.MarkSeen(msg.UID)
}

func (m *Manager) triggerForAccount(ctx context.Context, accountID string) (*models.Trigger, error) {
	triggers, err := m.persist.TriggerRepository().TriggersByType(ctx, models.TriggerTypeMailboxPolling)
	if err != nil {
		return nil, fmt.Errorf("failed to load mailbox triggers: %w", err)
	}

	for _, trigger := range triggers {
		id, _ := trigger.Config["accountId"].(string)
		if id == accountID {
			return trigger, nil
		}
	}

	return nil, fmt.Errorf("no mailbox trigger configured for account %s", accountID)
}

// credentials assembles the decrypted connection material. Only the password
// is stored encrypted.
func (m *Manager) credentials(account *models.Account) (models.MailboxCredentials, error) {
	var creds models.MailboxCredentials

	creds.Username, _ = account.Credentials["username"].(string)
	creds.Host, _ = account.Credentials["host"].(string)
	creds.TLS, _ = account.Credentials["tls"].(bool)

	switch port := account.Credentials["port"].(type) {
	case int:
		creds.Port = port
	case float64:
		creds.Port = int(port)
	}

	if creds.Username == "" || creds.Host == "" {
		return creds, fmt.Errorf("account %s has incomplete mailbox credentials", account.ID)
	}

	sealed, _ := account.Credentials["password"].(string)
	if sealed == "" {
		return creds, fmt.Errorf("account %s has no stored password", account.ID)
	}

	password, err := m.cipher.Decrypt(sealed)
	if err != nil {
		return creds, fmt.Errorf("failed to decrypt password for account %s: %w", account.ID, err)
	}

	creds.Password = password

	return creds, nil
}
