package cryptctl

import (
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/openblind/internal/cryptox"
	"github.com/dmitrijs2005/openblind/internal/logging"
	"github.com/dmitrijs2005/openblind/internal/server"
	"github.com/dmitrijs2005/openblind/internal/server/config"
	gs "github.com/dmitrijs2005/openblind/internal/server/grpc"
)

// dialAdmin is a test seam for connecting to the admin service.
var dialAdmin = func(addr, token string) (Jobs, func() error, error) {
	conn, err := gs.Dial(addr)
	if err != nil {
		return nil, nil, err
	}
	return gs.NewAdminClient(conn, token), conn.Close, nil
}

func needsJobs(cmd string) bool {
	return cmd == CmdStats || cmd == CmdMigrate || cmd == CmdVerify
}

// Execute resolves the key, builds the cipher and, when the command needs
// them, the migration jobs, then runs cmd. Status output goes to out,
// prompts to prompt.
func Execute(ctx context.Context, cmd string, opts Options, args []string, cfg *config.Config, l logging.Logger, out, prompt io.Writer) error {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	if opts.PromptKey {
		key, err := PromptKey(prompt)
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		cfg.EncryptionKey = key
	}

	remote := opts.Remote != "" && needsJobs(cmd)

	var engine *cryptox.Engine
	if cfg.EncryptionKey != "" || !remote {
		if err := cfg.ValidateCipher(); err != nil {
			return err
		}
		e, err := server.NewCipher(cfg, l, nil)
		if err != nil {
			return err
		}
		engine = e
	}

	var jobs Jobs
	switch {
	case !needsJobs(cmd):
	case remote:
		j, closeFn, err := dialAdmin(opts.Remote, opts.Token)
		if err != nil {
			return fmt.Errorf("dial %s: %w", opts.Remote, err)
		}
		defer closeFn()
		jobs = j
	default:
		r, closeFn, err := server.OpenProfileRepository(ctx, cfg, l)
		if err != nil {
			return fmt.Errorf("profile store: %w", err)
		}
		defer closeFn(context.Background())
		jobs = server.NewMigrator(r, engine, cfg, l, nil)
	}

	return NewApp(out, engine, jobs, l).Run(ctx, cmd, args)
}
