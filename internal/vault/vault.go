// Package vault abstracts credential lookup. The platform-encrypted
// vault lives outside this process; EnvVault is the desktop fallback.
package vault

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("credential not found")

// Vault resolves the credential UUID for a profile. Lookups may fail for
// missing or corrupt entries; callers surface that as a connection error.
type Vault interface {
	Credential(profileID string) (uuid.UUID, error)
}

// EnvVault reads credentials from VLESSLINK_UUID_<PROFILE> environment
// variables, with the profile id uppercased and dashes mapped to
// underscores.
type EnvVault struct{}

// EnvKey returns the environment variable holding the credential for a
// profile.
func EnvKey(profileID string) string {
	return "VLESSLINK_UUID_" + strings.ToUpper(strings.ReplaceAll(profileID, "-", "_"))
}

func (EnvVault) Credential(profileID string) (uuid.UUID, error) {
	key := EnvKey(profileID)
	raw, ok := os.LookupEnv(key)
	if !ok {
		return uuid.UUID{}, fmt.Errorf("%w: env %s not set", ErrNotFound, key)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("corrupt credential in %s: not a valid UUID", key)
	}
	return id, nil
}

// Static is an in-memory vault for tests and one-shot URI imports.
type Static map[string]uuid.UUID

func (s Static) Credential(profileID string) (uuid.UUID, error) {
	id, ok := s[profileID]
	if !ok {
		return uuid.UUID{}, fmt.Errorf("%w: profile %q", ErrNotFound, profileID)
	}
	return id, nil
}
