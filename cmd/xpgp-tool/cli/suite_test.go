package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/effective-security/x/ctl"
	"github.com/stretchr/testify/suite"
)

type testSuite struct {
	suite.Suite
	tmpdir string
	ctl    *Cli
	// Out is the output buffer
	Out bytes.Buffer

	appFlags []string
}

func (s *testSuite) SetupSuite() {
	s.tmpdir = filepath.Join(os.TempDir(), "/tests/xpgp", "xpgp-tool")
	err := os.MkdirAll(s.tmpdir, 0777)
	s.Require().NoError(err)

	passFile := filepath.Join(s.tmpdir, "pass.txt")
	err = os.WriteFile(passFile, []byte("test passphrase\n"), 0600)
	s.Require().NoError(err)

	s.ctl = &Cli{}

	s.ctl.WithErrWriter(&s.Out).
		WithWriter(&s.Out)

	parser, err := kong.New(s.ctl,
		kong.Name("xpgp-tool"),
		kong.Description("CLI tool"),
		kong.Writers(&s.Out, &s.Out),
		ctl.BoolPtrMapper,
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{})
	if err != nil {
		s.FailNow("unexpected error constructing Kong: %+v", err)
	}

	flags := append([]string{
		"--home", s.tmpdir,
		"--passphrase-file", passFile,
	}, s.appFlags...)
	_, err = parser.Parse(flags)
	if err != nil {
		s.FailNow("unexpected error parsing: %+v", err)
	}
}

func (s *testSuite) TearDownSuite() {
	os.RemoveAll(s.tmpdir)
}

// HasText is a helper method to assert that the out stream contains the supplied
// text somewhere
func (s *testSuite) HasText(texts ...string) {
	outStr := s.Out.String()
	for _, t := range texts {
		s.Contains(outStr, t)
	}
}

// HasTextInFile is a helper method to assert that file contains the supplied text
func (s *testSuite) HasTextInFile(file string, texts ...string) {
	f, err := os.ReadFile(file)
	s.Require().NoError(err, "unable to read: %s", file)
	outStr := string(f)
	for _, t := range texts {
		s.Contains(outStr, t, "expecting to find text %q in file %q", t, file)
	}
}

func TestSuite(t *testing.T) {
	suite.Run(t, new(testSuite))
}

func (s *testSuite) TestKeyLifecycle() {
	gen := KeyGenCmd{
		Identity: "Suite User <suite@example.com>",
		Bits:     1024,
	}
	err := gen.Run(s.ctl)
	s.Require().NoError(err)
	s.HasText(`"algorithm":"RSA"`, `"bits":1024`, `"has_secret":true`)
	s.Out.Reset()

	list := KeyListCmd{}
	err = list.Run(s.ctl)
	s.Require().NoError(err)
	s.HasText("[sec] Suite User <suite@example.com>", "Fingerprint: ", "Algorithm: RSA-1024")
	s.Out.Reset()

	exported := filepath.Join(s.tmpdir, "suite.pub.asc")
	export := KeyExportCmd{
		Identity: "suite@example.com",
		Out:      exported,
	}
	err = export.Run(s.ctl)
	s.Require().NoError(err)
	s.HasTextInFile(exported, "-----BEGIN PGP PUBLIC KEY BLOCK-----")

	imp := KeyImportCmd{In: exported}
	err = imp.Run(s.ctl)
	s.Require().NoError(err)
	s.HasText(`"imported":0`)
	s.Out.Reset()

	plainFile := filepath.Join(s.tmpdir, "note.txt")
	err = os.WriteFile(plainFile, []byte("the suite secret"), 0644)
	s.Require().NoError(err)

	msgFile := filepath.Join(s.tmpdir, "note.txt.asc")
	enc := EncryptCmd{
		In:        plainFile,
		Recipient: "suite@example.com",
		Out:       msgFile,
	}
	err = enc.Run(s.ctl)
	s.Require().NoError(err)
	s.HasTextInFile(msgFile, "-----BEGIN PGP MESSAGE-----")

	dec := DecryptCmd{In: msgFile}
	err = dec.Run(s.ctl)
	s.Require().NoError(err)
	s.HasText("the suite secret")
	s.Out.Reset()

	sigFile := filepath.Join(s.tmpdir, "note.txt.sig")
	detached := true
	sign := SignCmd{
		In:       plainFile,
		Signer:   "suite@example.com",
		Detached: &detached,
		Out:      sigFile,
	}
	err = sign.Run(s.ctl)
	s.Require().NoError(err)
	s.HasTextInFile(sigFile, "-----BEGIN PGP SIGNATURE-----")

	verify := VerifyCmd{
		In:  plainFile,
		Sig: sigFile,
	}
	err = verify.Run(s.ctl)
	s.Require().NoError(err)
	s.HasText(`"valid":true`)
	s.Out.Reset()
}

func (s *testSuite) TestVerifyMissingInput() {
	verify := VerifyCmd{In: filepath.Join(s.tmpdir, "does-not-exist")}
	err := verify.Run(s.ctl)
	s.Error(err)
}
