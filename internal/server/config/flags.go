package config

import (
	"flag"
	"io"
	"strconv"
	"time"

	"github.com/dmitrijs2005/openblind/internal/flagx"
)

// FlagNames lists the short flags parseFlags owns. Other binaries sharing
// the command line strip these with flagx.StripArgs.
var FlagNames = []string{"-a", "-w", "-d", "-m", "-n", "-s", "-t", "-r", "-k", "-f", "-l", "-u", "-p", "-b", "-g", "-e"}

// minutesFlag is a time.Duration given on the command line in whole minutes.
type minutesFlag struct{ d *time.Duration }

func (m minutesFlag) Get() any { return *m.d }

func (m minutesFlag) String() string {
	if m.d == nil {
		return "0"
	}
	return strconv.Itoa(int(m.d.Minutes()))
}

func (m minutesFlag) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*m.d = time.Duration(n) * time.Minute
	return nil
}

// parseFlags overlays c with the flags in args that belong to the server.
// Anything not in FlagNames is dropped before parsing.
func parseFlags(c *Config, args []string) error {
	fs := flag.NewFlagSet("openblind", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	for _, s := range []struct {
		name  string
		dst   *string
		usage string
	}{
		{"a", &c.EndpointAddrGRPC, "admin gRPC bind address"},
		{"w", &c.EndpointAddrHTTP, "HTTP API bind address"},
		{"d", &c.DatabaseDSN, "PostgreSQL DSN"},
		{"m", &c.MongoURI, "MongoDB URI, empty for the in-memory profile store"},
		{"n", &c.MongoDatabase, "MongoDB database"},
		{"s", &c.SecretKey, "JWT signing secret"},
		{"k", &c.EncryptionKey, "field encryption key"},
		{"f", &c.EncryptionFailMode, "cipher fail mode (open|closed)"},
		{"l", &c.LogLevel, "log level"},
		{"u", &c.S3RootUser, "S3 access key"},
		{"p", &c.S3RootPassword, "S3 secret key"},
		{"b", &c.S3Bucket, "S3 bucket for profile images"},
		{"g", &c.S3Region, "S3 region"},
		{"e", &c.S3BaseEndpoint, "S3 endpoint override"},
	} {
		fs.StringVar(s.dst, s.name, *s.dst, s.usage)
	}
	fs.Var(minutesFlag{&c.AccessTokenValidityDuration}, "t", "access token validity, minutes")
	fs.Var(minutesFlag{&c.RefreshTokenValidityDuration}, "r", "refresh token validity, minutes")

	return fs.Parse(flagx.FilterArgs(args, FlagNames))
}
