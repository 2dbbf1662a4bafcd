package cryptctl

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/openblind/internal/cryptox"
	"github.com/dmitrijs2005/openblind/internal/logging"
	"github.com/dmitrijs2005/openblind/internal/server/profiles"
	"github.com/goccy/go-json"
)

var (
	ErrNoCipher   = errors.New("command needs an encryption key")
	ErrIncomplete = errors.New("migration left records behind")
)

// Jobs is implemented by profiles.Migrator and grpc.AdminClient.
type Jobs interface {
	MigrateEncryption(ctx context.Context) (profiles.MigrationResult, error)
	VerifyEncryption(ctx context.Context) (profiles.VerificationResult, error)
	GetEncryptionStats(ctx context.Context) (profiles.EncryptionStats, error)
}

type App struct {
	out    io.Writer
	cipher *cryptox.Engine
	jobs   Jobs
	logger logging.Logger
}

// NewApp builds an App. cipher may be nil in remote mode; jobs may be nil
// for the commands that only touch the cipher.
func NewApp(out io.Writer, cipher *cryptox.Engine, jobs Jobs, l logging.Logger) *App {
	return &App{out: out, cipher: cipher, jobs: jobs, logger: l.With("module", "cryptctl")}
}

func (a *App) Run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case CmdSelfTest:
		return a.selfTest()
	case CmdEncrypt:
		return a.transform(args, a.seal)
	case CmdDecrypt:
		return a.transform(args, a.open)
	case CmdStats:
		_, err := a.stats(ctx)
		return err
	case CmdVerify:
		return a.verify(ctx)
	case CmdMigrate:
		return a.migrate(ctx)
	}
	return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
}

func (a *App) selfTest() error {
	if a.cipher == nil {
		return ErrNoCipher
	}
	if err := a.cipher.SelfTest(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "selftest: ok")
	return nil
}

// seal and open never fall back, whatever the configured fail mode.
func (a *App) seal(v string) (string, error) { return a.cipher.Seal(v) }
func (a *App) open(v string) (string, error) { return a.cipher.Open(v) }

func (a *App) transform(args []string, fn func(string) (string, error)) error {
	if a.cipher == nil {
		return ErrNoCipher
	}
	if len(args) != 1 {
		return fmt.Errorf("%w: expected exactly one value", ErrUsage)
	}
	out, err := fn(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, out)
	return nil
}

func (a *App) stats(ctx context.Context) (profiles.EncryptionStats, error) {
	st, err := a.jobs.GetEncryptionStats(ctx)
	if err != nil {
		return st, fmt.Errorf("stats: %w", err)
	}
	return st, a.print("stats", st)
}

func (a *App) verify(ctx context.Context) error {
	res, err := a.jobs.VerifyEncryption(ctx)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if err := a.print("verify", res); err != nil {
		return err
	}
	if res.InvalidCount > 0 {
		return fmt.Errorf("%w: %d sampled records failed verification", ErrIncomplete, res.InvalidCount)
	}
	return nil
}

// migrate runs the full rollout: self-test, stats, migration, verification
// and a final stats report. The local self-test is skipped in remote mode
// when no key was given; the server tests its own cipher on start.
func (a *App) migrate(ctx context.Context) error {
	if a.cipher != nil {
		if err := a.selfTest(); err != nil {
			return err
		}
	} else {
		a.logger.Warn(ctx, "no local key, skipping selftest")
	}

	before, err := a.stats(ctx)
	if err != nil {
		return err
	}
	if before.Unencrypted == 0 {
		fmt.Fprintln(a.out, "nothing to migrate")
		return a.verify(ctx)
	}

	res, err := a.jobs.MigrateEncryption(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := a.print("migrate", res); err != nil {
		return err
	}

	if err := a.verify(ctx); err != nil {
		return err
	}

	after, err := a.stats(ctx)
	if err != nil {
		return err
	}
	if res.ErrorCount > 0 || after.Unencrypted > 0 {
		return fmt.Errorf("%w: %d errors, %d records unencrypted", ErrIncomplete, res.ErrorCount, after.Unencrypted)
	}
	return nil
}

func (a *App) print(label string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "%s: %s\n", label, b)
	return err
}
