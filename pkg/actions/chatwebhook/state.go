package chatwebhook

import (
	"fmt"
	"net/http"
	"time"
)

// maxAttempts bounds the number of delivery attempts that consume a
// schedule slot. Rate-limited responses retry the same slot.
const maxAttempts = 5

// backoffSchedule holds the wait inserted before retry attempt n, indexed by
// the number of slots already consumed.
var backoffSchedule = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
}

// defaultRetryAfter applies when a 429 carries no usable Retry-After header.
const defaultRetryAfter = 1 * time.Second

type stepKind int

const (
	stepSucceeded stepKind = iota
	stepFailed
	// stepBackoff waits, then retries consuming the next attempt slot.
	stepBackoff
	// stepRateLimited waits, then retries the same attempt slot.
	stepRateLimited
)

// outcome captures what one HTTP delivery attempt produced. When err is set
// the request never yielded a response and statusCode is meaningless.
type outcome struct {
	err        error
	statusCode int
	retryAfter time.Duration
	body       []byte
}

// step is the state machine's verdict after one attempt.
type step struct {
	kind    stepKind
	wait    time.Duration
	message string
}

// transition decides what follows a delivery attempt. attempt is zero-based
// and counts consumed schedule slots. Client errors other than 429 fail
// immediately; 429 inserts a wait without consuming a slot; transport errors
// and server errors retry until the slots run out.
func transition(attempt int, out outcome) step {
	if out.err == nil {
		switch {
		case out.statusCode >= 200 && out.statusCode < 300:
			return step{kind: stepSucceeded}
		case out.statusCode == http.StatusTooManyRequests:
			wait := out.retryAfter
			if wait <= 0 {
				wait = defaultRetryAfter
			}

			return step{kind: stepRateLimited, wait: wait}
		case out.statusCode >= 400 && out.statusCode < 500:
			return step{
				kind:    stepFailed,
				message: fmt.Sprintf("chat webhook rejected the message with status %d", out.statusCode),
			}
		}
	}

	if attempt+1 >= maxAttempts {
		return step{kind: stepFailed, message: "chat webhook delivery failed after multiple retries"}
	}

	return step{kind: stepBackoff, wait: backoffSchedule[attempt]}
}
