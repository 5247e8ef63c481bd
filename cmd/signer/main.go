// Command signer is the client-side half of the possession proof. It holds a
// secp256k1 key, signs challenge messages issued by the ledger and derives
// identity commitments from a national identification number.
package main

import (
	"crypto/ecdsa"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"election-ledger/encryption"
	"election-ledger/proof"
	"election-ledger/service"
)

const usage = `usage: signer <command> [flags]

commands:
  keygen   create (or load) a key file and print its address
  address  print the address of a key
  sign     sign the challenge message for a nonce
  commit   derive the identity commitment for an 11-digit NIN
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], out)
	case "address":
		return runAddress(args[1:], out)
	case "sign":
		return runSign(args[1:], out)
	case "commit":
		return runCommit(args[1:], out)
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

// keyFlags registers the two ways of supplying a key.
type keyFlags struct {
	file string
	hex  string
}

func (k *keyFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&k.file, "key", "", "Path to a key file")
	fs.StringVar(&k.hex, "private-key", "", "Hex private key (prefer SIGNER_PRIVATE_KEY env)")
}

func (k *keyFlags) load() (*ecdsa.PrivateKey, error) {
	if k.hex == "" {
		k.hex = os.Getenv("SIGNER_PRIVATE_KEY")
	}
	switch {
	case k.hex != "":
		return encryption.NewCryptoService().ParsePrivateKey(k.hex)
	case k.file != "":
		return encryption.LoadKey(k.file)
	default:
		return nil, errors.New("a key is required (use -key, -private-key or SIGNER_PRIVATE_KEY)")
	}
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	path := fs.String("out", "signer.key", "Where to write the key file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	key, err := encryption.LoadOrGenerateKey(*path)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, encryption.NewCryptoService().AddressOf(key).Hex())
	return nil
}

func runAddress(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	var keys keyFlags
	keys.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	key, err := keys.load()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, encryption.NewCryptoService().AddressOf(key).Hex())
	return nil
}

func runSign(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	var keys keyFlags
	keys.register(fs)
	nonceHex := fs.String("nonce", "", "Challenge nonce as 0x-prefixed hex")
	if err := fs.Parse(args); err != nil {
		return err
	}

	nonce, err := hexutil.Decode(*nonceHex)
	if err != nil {
		return fmt.Errorf("decoding nonce: %w", err)
	}
	key, err := keys.load()
	if err != nil {
		return err
	}

	signature, err := proof.Sign(key, proof.Message(nonce))
	if err != nil {
		return fmt.Errorf("signing challenge: %w", err)
	}
	fmt.Fprintln(out, hexutil.Encode(signature))
	return nil
}

func runCommit(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("commit", flag.ContinueOnError)
	nin := fs.String("nin", "", "11-digit national identification number")
	if err := fs.Parse(args); err != nil {
		return err
	}

	verifier := service.NewVoterVerificationService(encryption.NewCryptoService())
	commitment, err := verifier.Commitment(*nin)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, commitment.Hex())
	return nil
}
