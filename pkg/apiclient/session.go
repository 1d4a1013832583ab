// pkg/apiclient/session.go
package apiclient

import "sync"

// MemorySession keeps tokens in process memory.
type MemorySession struct {
	mu       sync.Mutex
	access   string
	refresh  string
	loggedIn bool

	// OnLogout, when set, runs after a forced logout.
	OnLogout func()
}

func (s *MemorySession) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access
}

func (s *MemorySession) SetAccessToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = token
	if token != "" {
		s.loggedIn = true
	}
}

func (s *MemorySession) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh
}

func (s *MemorySession) SetRefreshToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = token
}

func (s *MemorySession) Logout() {
	s.mu.Lock()
	s.access, s.refresh, s.loggedIn = "", "", false
	fn := s.OnLogout
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// LoggedIn reports whether an access token has been set since the last
// logout.
func (s *MemorySession) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}
