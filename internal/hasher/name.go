package hasher

import (
	"fmt"
	"strings"

	"github.com/adamancini/launchkit/internal/errs"
)

const reservedChars = "<>:\"|?*"

// ValidateName checks that name is safe to use as a single path element on
// any platform the client runs on.
func ValidateName(name string) error {
	switch {
	case name == "":
		return errs.InvalidName("name", "must not be empty")
	case name == "." || name == "..":
		return errs.InvalidName("name", fmt.Sprintf("%q is not allowed", name))
	case len(name) > MaxNameLength:
		return errs.InvalidName("name", fmt.Sprintf("is %d bytes, max %d", len(name), MaxNameLength))
	case strings.ContainsAny(name, "/\\"):
		return errs.InvalidName("name", fmt.Sprintf("%q contains a path separator", name))
	case strings.ContainsRune(name, 0):
		return errs.InvalidName("name", "contains a NUL byte")
	case strings.ContainsAny(name, reservedChars):
		return errs.InvalidName("name", fmt.Sprintf("%q contains a reserved character", name))
	}
	return nil
}
