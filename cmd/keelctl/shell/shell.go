// Package shell implements keelctl's interactive command loop: one verb
// per line, dispatched against a pkg/client.Client connection. Grounded
// on the teacher's internal/cli/prompt (promptui wrappers) and
// internal/cli/output (tablewriter helpers), trimmed to the handful of
// prompt/table shapes this shell actually needs.
package shell

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/keelfs/keeld/pkg/client"
	"github.com/manifoldco/promptui"
)

// Options configures the connection keelctl dials before entering the
// shell loop.
type Options struct {
	Host       string
	Port       int
	Username   string
	Password   string
	BlindTrust bool
}

// Shell holds the live connection and the session identity the loop
// dispatches verbs against.
type Shell struct {
	client *client.Client
	opts   Options
}

// Run dials addr, optionally authenticates eagerly, and runs the command
// loop until BYE or EOF.
func Run(opts Options) error {
	if (opts.Username == "") != (opts.Password == "") {
		return errors.New("partial credentials: --username and --password must be supplied together")
	}
	if opts.Username != "" {
		fmt.Fprintln(os.Stderr, "warning: supplying a password on the command line exposes it in shell history and the process list")
	}

	addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
	c, err := client.Dial(addr, client.Options{BlindTrust: opts.BlindTrust})
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer c.Close()

	sh := &Shell{client: c, opts: opts}

	if opts.Username != "" {
		if _, _, err := sh.client.Login(opts.Username, opts.Password); err != nil {
			return fmt.Errorf("login as %s: %w", opts.Username, err)
		}
		fmt.Printf("logged in as %s\n", opts.Username)
	}

	return sh.loop()
}

func (sh *Shell) loop() error {
	for {
		line, err := sh.readLine()
		if err != nil {
			if errors.Is(err, promptui.ErrEOF) || errors.Is(err, promptui.ErrInterrupt) {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		verb := strings.ToUpper(fields[0])
		args := fields[1:]

		handler, ok := verbs[verb]
		if !ok {
			fmt.Printf("unknown verb %q (try HEARTBEAT, AUTH, QUERY, BYE, ...)\n", verb)
			continue
		}

		if err := handler(sh, args); err != nil {
			fmt.Println("error:", err)
		}
		if verb == "BYE" {
			return nil
		}
	}
}

func (sh *Shell) readLine() (string, error) {
	prompt := promptui.Prompt{Label: "keelctl"}
	return prompt.Run()
}
