package vaultctl

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"golang.org/x/term"
)

// KeyEnv is read before prompting.
const KeyEnv = "CROSSPOST_ENCRYPTION_KEY"

// readPassword and isTerminal are test seams for x/term.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// ReadKey returns the vault key from the environment or, on a terminal, from
// an echo-less prompt.
func ReadKey(w io.Writer) (string, error) {
	if k := strings.TrimSpace(os.Getenv(KeyEnv)); k != "" {
		return k, nil
	}

	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		return "", fmt.Errorf("%s is not set and stdin is not a terminal", KeyEnv)
	}
	if _, err := fmt.Fprint(w, "Encryption key: "); err != nil {
		return "", err
	}
	b, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(b)

	key := strings.TrimSpace(string(b))
	if key == "" {
		return "", errors.New("empty encryption key")
	}
	return key, nil
}
