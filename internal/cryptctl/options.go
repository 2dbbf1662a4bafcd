package cryptctl

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/openblind/internal/flagx"
	"github.com/dmitrijs2005/openblind/internal/server/config"
)

const (
	CmdSelfTest = "selftest"
	CmdEncrypt  = "encrypt"
	CmdDecrypt  = "decrypt"
	CmdStats    = "stats"
	CmdMigrate  = "migrate"
	CmdVerify   = "verify"
)

var commands = []string{CmdSelfTest, CmdEncrypt, CmdDecrypt, CmdStats, CmdMigrate, CmdVerify}

var ErrUsage = errors.New("usage: cryptctl <selftest|encrypt|decrypt|stats|migrate|verify> [-prompt-key] [-remote addr -token t] [-timeout d] [value]")

// Options are the flags cryptctl owns. Server settings (key, stores, fail
// mode) come from the server configuration layer.
type Options struct {
	PromptKey bool
	Remote    string
	Token     string
	Timeout   time.Duration
}

// ParseArgs splits args (without the program name) into the command, its
// options and the remaining positional values. Flags owned by the server
// configuration are skipped.
func ParseArgs(args []string) (string, Options, []string, error) {
	var opts Options

	if len(args) == 0 {
		return "", opts, nil, ErrUsage
	}

	cmd := args[0]
	if !isCommand(cmd) {
		return "", opts, nil, fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}

	owned := append([]string{"-c", "-config", "--config"}, config.FlagNames...)

	fs := flag.NewFlagSet("cryptctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&opts.PromptKey, "prompt-key", false, "read the encryption key from the terminal")
	fs.StringVar(&opts.Remote, "remote", "", "admin gRPC address of a running server")
	fs.StringVar(&opts.Token, "token", "", "admin access token for -remote")
	fs.DurationVar(&opts.Timeout, "timeout", 10*time.Minute, "overall command timeout")

	if err := fs.Parse(flagx.StripArgs(args[1:], owned)); err != nil {
		return "", opts, nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}

	if opts.Remote != "" && opts.Token == "" {
		return "", opts, nil, fmt.Errorf("%w: -remote requires -token", ErrUsage)
	}

	return cmd, opts, fs.Args(), nil
}

func isCommand(s string) bool {
	for _, c := range commands {
		if c == s {
			return true
		}
	}
	return false
}
