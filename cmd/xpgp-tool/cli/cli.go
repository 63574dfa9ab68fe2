// Package cli provides the xpgp-tool commands.
package cli

import (
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/effective-security/x/ctl"
	"github.com/effective-security/xlog"
	"github.com/effective-security/xpgp/engine"
	"github.com/effective-security/xpgp/x/print"
	"github.com/pkg/errors"
	"golang.org/x/net/context"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xpgp", "cli")

// Cli provides CLI context to run commands
type Cli struct {
	Version ctl.VersionFlag `name:"version" help:"Print version information and quit" hidden:""`

	Cfg            string `help:"optional, configuration file"`
	Home           string `help:"xpgp home directory with the key rings"`
	Pubring        string `help:"optional, public ring file location"`
	Secring        string `help:"optional, secret ring file location"`
	Armor          *bool  `help:"optional, produce ASCII armored output"`
	PassphraseFile string `help:"optional, file with the secret key passphrase"`

	// Stdin is the source to read from, typically set to os.Stdin
	stdin io.Reader
	// Output is the destination for all output from the command, typically set to os.Stdout
	output io.Writer
	// ErrOutput is the destinaton for errors.
	// If not set, errors will be written to os.StdError
	errOutput io.Writer

	ctx context.Context
	eng *engine.Engine
}

// Context for requests
func (c *Cli) Context() context.Context {
	if c.ctx == nil {
		c.ctx = context.Background()
	}
	return c.ctx
}

// Reader is the source to read from, typically set to os.Stdin
func (c *Cli) Reader() io.Reader {
	if c.stdin != nil {
		return c.stdin
	}
	return os.Stdin
}

// WithReader allows to specify a custom reader
func (c *Cli) WithReader(reader io.Reader) *Cli {
	c.stdin = reader
	return c
}

// Writer returns a writer for control output
func (c *Cli) Writer() io.Writer {
	if c.output != nil {
		return c.output
	}
	return os.Stdout
}

// WithWriter allows to specify a custom writer
func (c *Cli) WithWriter(out io.Writer) *Cli {
	c.output = out
	return c
}

// ErrWriter returns a writer for control output
func (c *Cli) ErrWriter() io.Writer {
	if c.errOutput != nil {
		return c.errOutput
	}
	return os.Stderr
}

// WithErrWriter allows to specify a custom error writer
func (c *Cli) WithErrWriter(out io.Writer) *Cli {
	c.errOutput = out
	return c
}

// AfterApply hook loads config
func (c *Cli) AfterApply(_ *kong.Kong, _ kong.Vars) error {
	xlog.SetGlobalLogLevel(xlog.ERROR)
	return nil
}

// Engine opens the key rings per the CLI flags and configuration file.
// The engine is created once and reused by subsequent commands.
func (c *Cli) Engine() (*engine.Engine, error) {
	if c.eng != nil {
		return c.eng, nil
	}

	cfg := &engine.Config{Armor: true}
	if c.Cfg != "" {
		loaded, err := engine.LoadConfig(c.Cfg)
		if err != nil {
			return nil, errors.WithMessage(err, "unable to load configuration")
		}
		cfg = loaded
	}
	if c.Home != "" {
		cfg.HomeDir = c.Home
	}
	if c.Pubring != "" {
		cfg.PublicRing = c.Pubring
	}
	if c.Secring != "" {
		cfg.SecretRing = c.Secring
	}
	if c.Armor != nil {
		cfg.Armor = *c.Armor
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return nil, errors.WithMessage(err, "unable to open key rings")
	}
	c.eng = eng
	return eng, nil
}

// Passphrase returns the secret key passphrase from --passphrase-file,
// or nil when none is configured.
func (c *Cli) Passphrase() ([]byte, error) {
	if c.PassphraseFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.PassphraseFile)
	if err != nil {
		return nil, errors.WithMessage(err, "unable to load passphrase file")
	}
	return []byte(strings.TrimRight(string(data), "\r\n")), nil
}

// WriteJSON prints response to out
func (c *Cli) WriteJSON(value any) {
	print.JSON(c.Writer(), value)
}

// ReadFile reads from stdin if the file is "-"
func (c *Cli) ReadFile(filename string) ([]byte, error) {
	if filename == "" {
		return nil, errors.New("empty file name")
	}
	if filename == "-" {
		return io.ReadAll(c.Reader())
	}
	return os.ReadFile(filename)
}

// WriteOutput writes data to the --out file when given, otherwise to
// the control output.
func (c *Cli) WriteOutput(out string, data []byte) error {
	if out == "" {
		_, err := c.Writer().Write(data)
		return errors.WithStack(err)
	}
	logger.KV(xlog.TRACE, "out", out, "size", len(data))
	return errors.WithStack(os.WriteFile(out, data, 0644))
}
