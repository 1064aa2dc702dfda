package models

// IdentifierType tags the subject of a tracking, lock, or block record.
// Different record collections accept different subsets.
type IdentifierType string

const (
	IdentifierEmail    IdentifierType = "email"
	IdentifierUsername IdentifierType = "username"
	IdentifierIP       IdentifierType = "ip"
	IdentifierUserID   IdentifierType = "user_id"
	IdentifierDevice   IdentifierType = "device_fingerprint"
	IdentifierAPIKey   IdentifierType = "api_key"
	IdentifierSession  IdentifierType = "session"
)

var attemptIdentifierTypes = map[IdentifierType]bool{
	IdentifierEmail:    true,
	IdentifierUsername: true,
	IdentifierIP:       true,
}

var lockIdentifierTypes = map[IdentifierType]bool{
	IdentifierEmail:    true,
	IdentifierUsername: true,
	IdentifierUserID:   true,
}

var overrideIdentifierTypes = map[IdentifierType]bool{
	IdentifierIP:     true,
	IdentifierUserID: true,
	IdentifierAPIKey: true,
}

var challengeIdentifierTypes = map[IdentifierType]bool{
	IdentifierIP:      true,
	IdentifierEmail:   true,
	IdentifierSession: true,
}

// ValidForAttempt reports whether the type may tag a login attempt
func (t IdentifierType) ValidForAttempt() bool {
	return attemptIdentifierTypes[t]
}

// ValidForLock reports whether the type may tag an account lock
func (t IdentifierType) ValidForLock() bool {
	return lockIdentifierTypes[t]
}

// ValidForBlock reports whether the type may tag a security block.
// Blocks target arbitrary identifier classes, so any known type is accepted.
func (t IdentifierType) ValidForBlock() bool {
	switch t {
	case IdentifierEmail, IdentifierUsername, IdentifierIP,
		IdentifierUserID, IdentifierDevice, IdentifierAPIKey, IdentifierSession:
		return true
	}
	return false
}

// ValidForOverride reports whether the type may tag a rate limit override
func (t IdentifierType) ValidForOverride() bool {
	return overrideIdentifierTypes[t]
}

// ValidForChallenge reports whether the type may tag a CAPTCHA challenge
func (t IdentifierType) ValidForChallenge() bool {
	return challengeIdentifierTypes[t]
}
