package cryptctl

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/openblind/internal/common"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// PromptKey asks for the encryption key on the terminal without echo.
func PromptKey(w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, "Encryption key: "); err != nil {
		return "", err
	}
	key, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	defer common.Wipe(key)
	return strings.TrimSpace(string(key)), nil
}
