package cryptctl

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dmitrijs2005/openblind/internal/cryptox"
	"github.com/dmitrijs2005/openblind/internal/logging"
	"github.com/dmitrijs2005/openblind/internal/server/profiles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJobs struct {
	stats    []profiles.EncryptionStats
	migrate  profiles.MigrationResult
	verify   profiles.VerificationResult
	err      error
	calls    []string
	statsIdx int
}

func (f *fakeJobs) MigrateEncryption(context.Context) (profiles.MigrationResult, error) {
	f.calls = append(f.calls, CmdMigrate)
	return f.migrate, f.err
}

func (f *fakeJobs) VerifyEncryption(context.Context) (profiles.VerificationResult, error) {
	f.calls = append(f.calls, CmdVerify)
	return f.verify, nil
}

func (f *fakeJobs) GetEncryptionStats(context.Context) (profiles.EncryptionStats, error) {
	f.calls = append(f.calls, CmdStats)
	st := f.stats[min(f.statsIdx, len(f.stats)-1)]
	f.statsIdx++
	return st, nil
}

func testEngine(t *testing.T) *cryptox.Engine {
	t.Helper()
	e, err := cryptox.NewEngine("cryptctl-test-key", cryptox.AlgorithmAES256GCM)
	require.NoError(t, err)
	return e
}

func TestRun_EncryptDecrypt(t *testing.T) {
	var out bytes.Buffer
	a := NewApp(&out, testEngine(t), nil, logging.NewNop())
	ctx := context.Background()

	require.NoError(t, a.Run(ctx, CmdEncrypt, []string{"Maria"}))
	sealed := strings.TrimSpace(out.String())
	assert.True(t, cryptox.IsEncrypted(sealed))

	out.Reset()
	require.NoError(t, a.Run(ctx, CmdDecrypt, []string{sealed}))
	assert.Equal(t, "Maria\n", out.String())

	assert.ErrorIs(t, a.Run(ctx, CmdEncrypt, nil), ErrUsage)

	other, err := cryptox.NewEngine("another-key", cryptox.AlgorithmAES256GCM)
	require.NoError(t, err)
	foreign, err := other.Seal("Maria")
	require.NoError(t, err)
	assert.Error(t, a.Run(ctx, CmdDecrypt, []string{foreign}))
}

func TestRun_SelfTest(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, NewApp(&out, testEngine(t), nil, logging.NewNop()).Run(context.Background(), CmdSelfTest, nil))
	assert.Equal(t, "selftest: ok\n", out.String())

	err := NewApp(&out, nil, nil, logging.NewNop()).Run(context.Background(), CmdSelfTest, nil)
	assert.ErrorIs(t, err, ErrNoCipher)
}

func TestRun_MigrateFullSequence(t *testing.T) {
	jobs := &fakeJobs{
		stats: []profiles.EncryptionStats{
			{Total: 10, Encrypted: 7, Unencrypted: 3, CoveragePercent: 70},
			{Total: 10, Encrypted: 10, CoveragePercent: 100},
		},
		migrate: profiles.MigrationResult{MigratedCount: 3},
		verify:  profiles.VerificationResult{Sampled: 10, ValidCount: 10},
	}
	var out bytes.Buffer

	err := NewApp(&out, testEngine(t), jobs, logging.NewNop()).Run(context.Background(), CmdMigrate, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{CmdStats, CmdMigrate, CmdVerify, CmdStats}, jobs.calls)

	s := out.String()
	assert.True(t, strings.HasPrefix(s, "selftest: ok\n"))
	assert.Contains(t, s, `"migratedCount": 3`)
	assert.Contains(t, s, `"coveragePercent": 100`)
}

func TestRun_MigrateNothingToDo(t *testing.T) {
	jobs := &fakeJobs{
		stats:  []profiles.EncryptionStats{{Total: 2, Encrypted: 2, CoveragePercent: 100}},
		verify: profiles.VerificationResult{Sampled: 2, ValidCount: 2},
	}
	var out bytes.Buffer

	require.NoError(t, NewApp(&out, nil, jobs, logging.NewNop()).Run(context.Background(), CmdMigrate, nil))
	assert.Equal(t, []string{CmdStats, CmdVerify}, jobs.calls)
	assert.Contains(t, out.String(), "nothing to migrate")
}

func TestRun_MigrateIncomplete(t *testing.T) {
	jobs := &fakeJobs{
		stats: []profiles.EncryptionStats{
			{Total: 2, Unencrypted: 2},
			{Total: 2, Encrypted: 1, Unencrypted: 1, CoveragePercent: 50},
		},
		migrate: profiles.MigrationResult{MigratedCount: 1, ErrorCount: 1},
		verify:  profiles.VerificationResult{Sampled: 2, ValidCount: 2},
	}
	var out bytes.Buffer

	err := NewApp(&out, testEngine(t), jobs, logging.NewNop()).Run(context.Background(), CmdMigrate, nil)
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestRun_JobErrors(t *testing.T) {
	boom := errors.New("boom")
	jobs := &fakeJobs{
		stats: []profiles.EncryptionStats{{Total: 1, Unencrypted: 1}},
		err:   boom,
	}
	var out bytes.Buffer

	err := NewApp(&out, nil, jobs, logging.NewNop()).Run(context.Background(), CmdMigrate, nil)
	assert.ErrorIs(t, err, boom)

	jobs = &fakeJobs{verify: profiles.VerificationResult{Sampled: 1, InvalidCount: 1}}
	err = NewApp(&out, nil, jobs, logging.NewNop()).Run(context.Background(), CmdVerify, nil)
	assert.ErrorIs(t, err, ErrIncomplete)
}
