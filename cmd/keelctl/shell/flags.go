package shell

import (
	"github.com/keelfs/keeld/pkg/client"
	"github.com/spf13/pflag"
)

// modifiers holds the per-command modifier flags spec.md's CLI surface
// defines: -bye (close after), -dc (display credentials), and the
// file-specific --chunk-size/--limit/--pos/--chunked/--post-keepalive
// set. Not every verb reads every field.
type modifiers struct {
	bye           bool
	displayCreds  bool
	chunkSize     int
	limit         int64
	pos           int64
	chunked       bool
	postKeepalive bool
}

// parseArgs splits args into positional arguments and modifier flags
// shared across every verb's flag set. -bye and -dc are single-dash
// single-word modifiers (not pflag shorthands), so they're peeled off by
// hand before the rest are parsed as ordinary long flags.
func parseArgs(verb string, args []string) ([]string, *modifiers, error) {
	m := &modifiers{chunkSize: client.DefaultChunkSize}

	rest := make([]string, 0, len(args))
	for _, a := range args {
		switch a {
		case "-bye":
			m.bye = true
		case "-dc":
			m.displayCreds = true
		default:
			rest = append(rest, a)
		}
	}

	fs := pflag.NewFlagSet(verb, pflag.ContinueOnError)
	fs.Usage = func() {}
	fs.IntVar(&m.chunkSize, "chunk-size", client.DefaultChunkSize, "bytes per chunk for file transfers")
	fs.Int64Var(&m.limit, "limit", 0, "maximum bytes to read (0 = until EOF)")
	fs.Int64Var(&m.pos, "pos", 0, "starting cursor position")
	fs.BoolVar(&m.chunked, "chunked", false, "print each chunk as it arrives instead of the assembled result")
	fs.BoolVar(&m.postKeepalive, "post-keepalive", false, "keep the file handle cached after the closing chunk")

	if err := fs.Parse(rest); err != nil {
		return nil, nil, err
	}
	return fs.Args(), m, nil
}
