// Package flagx holds helpers for reading a subset of command-line flags
// without colliding with flags owned by other layers.
package flagx

import (
	"flag"
	"io"
	"os"
	"strings"
)

// Partition splits args into the flags listed in names (with their values)
// and everything else, keeping the order within each half.
//
// Both "-c conf.json" and "--config=conf.json" are recognised. A separate
// value is consumed only when it does not itself start with '-'.
func Partition(args []string, names []string) (matched, rest []string) {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}

	matched = make([]string, 0, len(args))
	rest = make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") {
			if set[name] {
				matched = append(matched, arg)
			} else {
				rest = append(rest, arg)
			}
			continue
		}

		if !set[arg] {
			rest = append(rest, arg)
			continue
		}
		matched = append(matched, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			i++
			matched = append(matched, args[i])
		}
	}
	return matched, rest
}

// FilterArgs keeps only the allowed flags and their values.
func FilterArgs(args []string, allowedFlags []string) []string {
	matched, _ := Partition(args, allowedFlags)
	return matched
}

// StripArgs drops the owned flags and their values.
func StripArgs(args []string, ownedFlags []string) []string {
	_, rest := Partition(args, ownedFlags)
	return rest
}

// ConfigFileFlag extracts the path given with -c or -config from args.
// Other arguments are ignored. The last occurrence wins.
func ConfigFileFlag(args []string) string {
	var config string

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&config, "config", "", "Path to config file")
	fs.StringVar(&config, "c", "", "Path to config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config", "--config"}))

	return config
}

// JsonConfigFlags is ConfigFileFlag applied to os.Args.
func JsonConfigFlags() string {
	return ConfigFileFlag(os.Args[1:])
}
