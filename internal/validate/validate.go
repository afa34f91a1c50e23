// Package validate implements the pure shape/length validators shared by
// every inbound field in the cue API: raw key credentials, key ids, key
// names, cue names, and cue patterns.
package validate

import "regexp"

const (
	// keyMaxLen accommodates keystore.randomToken's 64-char hex-encoded
	// raw key (32 random bytes) with headroom for a longer token size.
	keyMinLen     = 5
	keyMaxLen     = 128
	keyIDMinLen   = 5
	keyIDMaxLen   = 50
	nameMinLen    = 1
	nameMaxLen    = 1024
	patternMinLen = 1
	patternMaxLen = 1024
)

var (
	alnumRe = regexp.MustCompile(`^[0-9A-Za-z]+$`)
	keyIDRe = regexp.MustCompile(`^[0-9A-Fa-f-]+$`)
)

// Key validates a raw API key credential (the bearer token itself).
func Key(value string) (ok bool, diagnostic string) {
	if value == "" {
		return false, "key is required"
	}
	if len(value) > keyMaxLen {
		return false, "key is too long"
	}
	if len(value) < keyMinLen {
		return false, "key is too short"
	}
	if !alnumRe.MatchString(value) {
		return false, "key has invalid format"
	}
	return true, ""
}

// KeyID validates an API key identifier (uuid-like: hex digits and dashes).
// Key-request ids are checked by RequestID instead.
func KeyID(value string) (ok bool, diagnostic string) {
	if value == "" {
		return false, "key id is required"
	}
	if len(value) > keyIDMaxLen {
		return false, "key id is too long"
	}
	if len(value) < keyIDMinLen {
		return false, "key id is too short"
	}
	if !keyIDRe.MatchString(value) {
		return false, "key id has invalid format"
	}
	return true, ""
}

// KeyName validates a free-form, human-chosen label for an API key.
func KeyName(value string) (ok bool, diagnostic string) {
	if value == "" {
		return false, "key name is required"
	}
	if len(value) > nameMaxLen {
		return false, "key name is too long"
	}
	if len(value) < nameMinLen {
		return false, "key name is too short"
	}
	return true, ""
}

// CueName validates a single cue name supplied to publish or listen.
func CueName(value string) (ok bool, diagnostic string) {
	if value == "" {
		return false, "cue name is required"
	}
	if len(value) > nameMaxLen {
		return false, "cue name is too long"
	}
	if len(value) < nameMinLen {
		return false, "cue name is too short"
	}
	return true, ""
}

// CuePattern validates a single glob pattern supplied to listen or attached
// to an API key.
func CuePattern(value string) (ok bool, diagnostic string) {
	if value == "" {
		return false, "cue pattern is required"
	}
	if len(value) > patternMaxLen {
		return false, "cue pattern is too long"
	}
	if len(value) < patternMinLen {
		return false, "cue pattern is too short"
	}
	return true, ""
}

// RequestID checks the cheap shape constraint on a key-request id before any
// store lookup is attempted: length > 5 (per original_source), alphanumeric.
func RequestID(value string) bool {
	return len(value) > 5 && alnumRe.MatchString(value)
}
