package cli

import (
	"github.com/pkg/errors"
)

// EncryptCmd specifies flags for the encrypt action
type EncryptCmd struct {
	In        string `kong:"arg" required:"" help:"input file, or - for stdin"`
	Recipient string `help:"recipient identity, fingerprint or key ID"`
	Out       string `help:"optional, output file for the message"`
}

// Run the command
func (a *EncryptCmd) Run(ctx *Cli) error {
	eng, err := ctx.Engine()
	if err != nil {
		return err
	}
	data, err := ctx.ReadFile(a.In)
	if err != nil {
		return errors.WithMessage(err, "unable to load input")
	}

	msg, err := eng.EncryptData(data, a.Recipient)
	if err != nil {
		return errors.WithMessage(err, "unable to encrypt")
	}
	return ctx.WriteOutput(a.Out, msg)
}

// DecryptCmd specifies flags for the decrypt action
type DecryptCmd struct {
	In  string `kong:"arg" required:"" help:"message file, or - for stdin"`
	Out string `help:"optional, output file for the plaintext"`
}

// Run the command
func (a *DecryptCmd) Run(ctx *Cli) error {
	eng, err := ctx.Engine()
	if err != nil {
		return err
	}
	passphrase, err := ctx.Passphrase()
	if err != nil {
		return err
	}
	data, err := ctx.ReadFile(a.In)
	if err != nil {
		return errors.WithMessage(err, "unable to load message")
	}

	plain, err := eng.DecryptData(data, passphrase)
	if err != nil {
		return errors.WithMessage(err, "unable to decrypt")
	}
	return ctx.WriteOutput(a.Out, plain)
}

// SignCmd specifies flags for the sign action
type SignCmd struct {
	In       string `kong:"arg" required:"" help:"input file, or - for stdin"`
	Signer   string `help:"signer identity, fingerprint or key ID"`
	Detached *bool  `help:"optional, produce a detached signature"`
	Out      string `help:"optional, output file for the signature"`
}

// Run the command
func (a *SignCmd) Run(ctx *Cli) error {
	eng, err := ctx.Engine()
	if err != nil {
		return err
	}
	passphrase, err := ctx.Passphrase()
	if err != nil {
		return err
	}
	data, err := ctx.ReadFile(a.In)
	if err != nil {
		return errors.WithMessage(err, "unable to load input")
	}

	var msg []byte
	if a.Detached != nil && *a.Detached {
		msg, err = eng.SignDetached(data, a.Signer, passphrase)
	} else {
		msg, err = eng.SignData(data, a.Signer, passphrase)
	}
	if err != nil {
		return errors.WithMessage(err, "unable to sign")
	}
	return ctx.WriteOutput(a.Out, msg)
}

// VerifyCmd specifies flags for the verify action
type VerifyCmd struct {
	In  string `kong:"arg" required:"" help:"signed message file, or - for stdin"`
	Sig string `help:"optional, detached signature file; when given, In is the raw data"`
}

// Run the command
func (a *VerifyCmd) Run(ctx *Cli) error {
	eng, err := ctx.Engine()
	if err != nil {
		return err
	}
	data, err := ctx.ReadFile(a.In)
	if err != nil {
		return errors.WithMessage(err, "unable to load input")
	}

	var res any
	if a.Sig != "" {
		sig, err := ctx.ReadFile(a.Sig)
		if err != nil {
			return errors.WithMessage(err, "unable to load signature")
		}
		res, err = eng.VerifyDetached(data, sig)
		if err != nil {
			return errors.WithMessage(err, "unable to verify")
		}
	} else {
		res, err = eng.VerifyData(data)
		if err != nil {
			return errors.WithMessage(err, "unable to verify")
		}
	}
	ctx.WriteJSON(res)
	return nil
}
