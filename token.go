package relay

import (
	"fmt"
	"strings"
)

const (
	tokenTag       = "rly"
	tokenDelimiter = "_"
	tokenSegments  = 4
)

// Credentials identify the project and environment a service token is
// scoped to.
type Credentials struct {
	ProjectID      string
	EnvironmentKey string
}

// ParseToken validates a service token of the form
// rly_<projectId>_<environmentKey>_<secret> and extracts its scope.
// The secret segment may itself contain underscores.
func ParseToken(token string) (Credentials, error) {
	parts := strings.Split(token, tokenDelimiter)
	if len(parts) < tokenSegments {
		return Credentials{}, fmt.Errorf("%w: want at least %d segments, got %d", ErrInvalidToken, tokenSegments, len(parts))
	}
	if parts[0] != tokenTag {
		return Credentials{}, fmt.Errorf("%w: unknown token tag %q", ErrInvalidToken, parts[0])
	}
	return Credentials{ProjectID: parts[1], EnvironmentKey: parts[2]}, nil
}
