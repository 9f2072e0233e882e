// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package recovery

// DefaultMaxFailures is the number of failed attempts tolerated per stage.
const DefaultMaxFailures = 5

// Decision is the outcome of recording an attempt.
type Decision int

const (
	Proceed Decision = iota + 1
	Rejected
	Locked
)

func (d Decision) String() string {
	switch d {
	case Proceed:
		return "proceed"
	case Rejected:
		return "rejected"
	case Locked:
		return "locked"
	}
	return "unknown"
}

// Throttle counts failed submissions per session and stage. Counters live in
// the Session only, there is no cross-session aggregation.
type Throttle struct {
	MaxFailures int
}

// NewThrottle returns a throttle tolerating maxFailures failures per stage.
func NewThrottle(maxFailures int) Throttle {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	return Throttle{MaxFailures: maxFailures}
}

// Locked reports whether stage no longer accepts submissions in s.
func (t Throttle) Locked(s Session, stage Stage) bool {
	return s.Attempts(stage) >= t.MaxFailures
}

// Record applies the outcome of one evaluated submission to s. A success
// leaves both counters untouched. A failure increments only the counter of
// stage, unless the stage is already locked.
func (t Throttle) Record(s Session, stage Stage, success bool) (Session, Decision, error) {
	if stage == StageAnswer && s.VerifiedUsername == "" {
		return s, 0, ErrUsernameNotVerified
	}
	if t.Locked(s, stage) {
		return s, Locked, nil
	}
	if success {
		return s, Proceed, nil
	}

	switch stage {
	case StageUsername:
		s.UsernameAttempts++
	case StageAnswer:
		s.AnswerAttempts++
	}
	return s, Rejected, nil
}

// Reserve claims one attempt of stage before the submission is evaluated.
// The claim counts as a failure until Release hands it back, so concurrent
// submissions can never evaluate more than MaxFailures times per stage.
func (t Throttle) Reserve(s Session, stage Stage) (Session, Decision, error) {
	if stage == StageAnswer && s.VerifiedUsername == "" {
		return s, 0, ErrUsernameNotVerified
	}
	if t.Locked(s, stage) {
		return s, Locked, nil
	}

	switch stage {
	case StageUsername:
		s.UsernameAttempts++
	case StageAnswer:
		s.AnswerAttempts++
	}
	return s, Proceed, nil
}

// Release returns a claim taken by Reserve after a successful evaluation.
func (t Throttle) Release(s Session, stage Stage) Session {
	switch {
	case stage == StageUsername && s.UsernameAttempts > 0:
		s.UsernameAttempts--
	case stage == StageAnswer && s.AnswerAttempts > 0:
		s.AnswerAttempts--
	}
	return s
}
