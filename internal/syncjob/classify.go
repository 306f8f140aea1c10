package syncjob

// OutcomeClass is the consumer's disposition for one message. Every class
// implies acknowledgment: nothing the consumer sees is ever handed back to
// the queue as a retry signal.
type OutcomeClass int

const (
	// ClassSuccess records a successful progress update with the item count.
	ClassSuccess OutcomeClass = iota

	// ClassTrivialSuccess records a zero-item success: the subscription was
	// removed or paused after enqueue, so the user's intent already
	// superseded the sync request.
	ClassTrivialSuccess

	// ClassTerminal drops the message without a progress update: malformed
	// data cannot self-heal and carries no attributable subscription.
	ClassTerminal

	// ClassRecordedFailure records a failed progress update. Covers a missing
	// provider connection (retrying will not conjure one) and provider call
	// failures (converted to job-level bookkeeping, not redelivery).
	ClassRecordedFailure
)

func (c OutcomeClass) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassTrivialSuccess:
		return "trivial_success"
	case ClassTerminal:
		return "terminal"
	case ClassRecordedFailure:
		return "recorded_failure"
	default:
		return ""
	}
}

// Outcome captures everything known about one message before the
// acknowledgment decision.
type Outcome struct {
	Malformed          bool
	ConnectionPresent  bool
	SubscriptionActive bool
	PollErr            error
}

// Classify maps an observed outcome to its disposition. Pure; the
// acknowledgment call lives with the caller.
func Classify(o Outcome) OutcomeClass {
	switch {
	case o.Malformed:
		return ClassTerminal
	case !o.ConnectionPresent:
		return ClassRecordedFailure
	case !o.SubscriptionActive:
		return ClassTrivialSuccess
	case o.PollErr != nil:
		return ClassRecordedFailure
	default:
		return ClassSuccess
	}
}
