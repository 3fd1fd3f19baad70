// Command authcore-keygen writes a fresh signing key as a pair of JWKS
// documents: jwks-public.json and jwks-private.json.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/keys"
)

func main() {
	var (
		alg   = flag.String("alg", string(keys.RS256), "key algorithm: RS256, ES256 or EdDSA")
		kid   = flag.String("kid", "", "key id; a random UUID when empty")
		out   = flag.String("out", "config", "output directory")
		force = flag.Bool("force", false, "overwrite existing files")
	)
	flag.Parse()

	if err := run(*alg, *kid, *out, *force); err != nil {
		fmt.Fprintf(os.Stderr, "authcore-keygen: %v\n", err)
		os.Exit(1)
	}
}

func run(alg, kid, out string, force bool) error {
	if kid == "" {
		kid = uuid.NewString()
	}
	pub, priv, err := keys.Generate(keys.Algorithm(alg), kid)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}

	pubPath := filepath.Join(out, keys.DefaultPublicFile)
	privPath := filepath.Join(out, keys.DefaultPrivateFile)
	if !force {
		for _, p := range []string{pubPath, privPath} {
			if _, err := os.Stat(p); err == nil {
				return fmt.Errorf("%s exists, use -force to overwrite", p)
			} else if !errors.Is(err, os.ErrNotExist) {
				return err
			}
		}
	}

	if err := os.WriteFile(privPath, priv, 0o600); err != nil {
		return err
	}
	if err := os.WriteFile(pubPath, pub, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s key %s to %s\n", alg, kid, out)
	return nil
}
