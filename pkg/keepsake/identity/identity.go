// Package identity resolves the name of the user performing file operations.
// Backups and audit lines embed it so concurrent editors can be told apart.
package identity

import (
	"os"
	"os/user"
	"strings"
	"sync"
)

// Unknown is returned when no user name can be determined.
const Unknown = "unknown"

var (
	once    sync.Once
	current string
)

// Current returns the sanitized login name of the current process owner.
// The lookup is performed once and cached.
func Current() string {
	once.Do(func() {
		current = Sanitize(lookup())
	})
	return current
}

func lookup() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	for _, key := range []string{"USER", "USERNAME", "LOGNAME"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return Unknown
}

// Sanitize makes a user name safe to embed in a file name.
// Windows account names of the form DOMAIN\user keep only the user part.
func Sanitize(name string) string {
	if i := strings.LastIndexAny(name, `\/`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(name)

	var b strings.Builder
	for _, r := range name {
		switch r {
		case ':', '*', '?', '"', '<', '>', '|', ' ':
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}

	if b.Len() == 0 {
		return Unknown
	}
	return b.String()
}
