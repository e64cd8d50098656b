package dmart

// sessionStore holds the current session for one Client. It has no locking
// of its own; the owning Client guards every access.
type sessionStore struct {
	session Session
	valid   bool
}

func (s *sessionStore) get() (Session, bool) {
	return s.session, s.valid
}

func (s *sessionStore) set(session Session) {
	s.session = session
	s.valid = true
}

func (s *sessionStore) clear() {
	s.session = Session{}
	s.valid = false
}

// clearIf clears the session only if it still holds token. A concurrent
// caller may already have replaced a rejected token with a fresh one.
func (s *sessionStore) clearIf(token string) bool {
	if !s.valid || s.session.Token != token {
		return false
	}
	s.clear()
	return true
}
