package auth

// Secret holds a sensitive string (password, access token, token secret,
// refresh token). It exists so that secrets are never printed by accident
// and can be overwritten before the backing memory is dropped: the garbage
// collector gives no timing guarantee, so Zero is called explicitly whenever
// a credential is replaced or cleared.
//
// A nil *Secret behaves as an absent secret.
type Secret struct {
	b []byte
}

// NewSecret copies s into a fresh Secret. An empty string yields a non-nil
// but empty secret.
func NewSecret(s string) *Secret {
	return &Secret{b: []byte(s)}
}

// Reveal returns the secret's current value. Returns "" after Zero or on a
// nil receiver.
func (s *Secret) Reveal() string {
	if s == nil {
		return ""
	}
	return string(s.b)
}

// Empty reports whether no secret material is held.
func (s *Secret) Empty() bool {
	return s == nil || len(s.b) == 0
}

// Zero overwrites the backing memory. Safe on a nil receiver.
func (s *Secret) Zero() {
	if s == nil {
		return
	}
	for i := range s.b {
		s.b[i] = 0
	}
	s.b = s.b[:0]
}

// String implements fmt.Stringer without exposing the value, so secrets
// that leak into log statements stay redacted.
func (s *Secret) String() string {
	return "[redacted]"
}

// Wipe overwrites b with zeros. Token-endpoint response bodies carry
// credentials, so the authorizers scrub them once their fields have been
// extracted rather than leaving the bytes to the garbage collector.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
