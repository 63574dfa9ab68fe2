package cli

import (
	"github.com/effective-security/xpgp/x/print"
	"github.com/pkg/errors"
)

// KeyCmd provides key management commands
type KeyCmd struct {
	Gen    KeyGenCmd    `cmd:"" help:"generate a new key pair"`
	List   KeyListCmd   `cmd:"" help:"list keys in the rings"`
	Export KeyExportCmd `cmd:"" help:"export a key"`
	Import KeyImportCmd `cmd:"" help:"import keys into the rings"`
}

// KeyGenCmd specifies flags for the key gen action
type KeyGenCmd struct {
	Identity string `kong:"arg" required:"" help:"user identity, e.g. \"Alice <alice@example.com>\""`
	Bits     int    `help:"RSA key strength in bits" default:"2048"`
}

// Run the command
func (a *KeyGenCmd) Run(ctx *Cli) error {
	eng, err := ctx.Engine()
	if err != nil {
		return err
	}
	passphrase, err := ctx.Passphrase()
	if err != nil {
		return err
	}

	info, err := eng.GenerateKey(ctx.Context(), a.Bits, a.Identity, passphrase)
	if err != nil {
		return errors.WithMessage(err, "unable to generate key")
	}
	ctx.WriteJSON(info)
	return nil
}

// KeyListCmd specifies flags for the key list action
type KeyListCmd struct {
	JSON *bool `help:"optional, print the listing as JSON"`
}

// Run the command
func (a *KeyListCmd) Run(ctx *Cli) error {
	eng, err := ctx.Engine()
	if err != nil {
		return err
	}

	list := eng.ListKeys()
	if a.JSON != nil && *a.JSON {
		ctx.WriteJSON(list)
		return nil
	}
	print.Keys(ctx.Writer(), list)
	return nil
}

// KeyExportCmd specifies flags for the key export action
type KeyExportCmd struct {
	Identity string `kong:"arg" required:"" help:"identity, fingerprint or key ID"`
	Secret   *bool  `help:"optional, export the secret key block"`
	Out      string `help:"optional, output file to save the exported key"`
}

// Run the command
func (a *KeyExportCmd) Run(ctx *Cli) error {
	eng, err := ctx.Engine()
	if err != nil {
		return err
	}

	var block []byte
	if a.Secret != nil && *a.Secret {
		block, err = eng.ExportSecretKey(a.Identity)
	} else {
		block, err = eng.ExportKey(a.Identity)
	}
	if err != nil {
		return errors.WithMessage(err, "unable to export key")
	}
	return ctx.WriteOutput(a.Out, block)
}

// KeyImportCmd specifies flags for the key import action
type KeyImportCmd struct {
	In string `kong:"arg" required:"" help:"key file, or - for stdin"`
}

// Run the command
func (a *KeyImportCmd) Run(ctx *Cli) error {
	eng, err := ctx.Engine()
	if err != nil {
		return err
	}
	data, err := ctx.ReadFile(a.In)
	if err != nil {
		return errors.WithMessage(err, "unable to load key file")
	}

	added, err := eng.ImportKeyData(data)
	if err != nil {
		return errors.WithMessage(err, "unable to import keys")
	}
	ctx.WriteJSON(map[string]int{"imported": added})
	return nil
}
