// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package recovery

// Pin returns the security question asked in s. The first call derives it
// from the session seed and stores it; it never changes afterwards.
func Pin(s Session) (Session, Question) {
	if s.PinnedQuestion == Question1 || s.PinnedQuestion == Question2 {
		return s, s.PinnedQuestion
	}
	s.PinnedQuestion = Question(s.Seed%2) + Question1
	return s, s.PinnedQuestion
}
