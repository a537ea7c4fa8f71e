package cli

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const saltBytes = 32

// GenerateSalts prints a fresh pair of hasher salts as a config
// snippet. Rotating salts invalidates every hashed identity, so this is
// a bootstrap helper, not a routine operation.
type GenerateSalts struct{}

func (g GenerateSalts) Run(cli *CLI, version string) error {
	ipSalt, err := newSalt()
	if err != nil {
		return fmt.Errorf("cannot generate ip salt: %w", err)
	}

	uaSalt, err := newSalt()
	if err != nil {
		return fmt.Errorf("cannot generate ua salt: %w", err)
	}

	fmt.Println("[salts]")          //nolint: forbidigo
	fmt.Printf("ip = %q\n", ipSalt) //nolint: forbidigo
	fmt.Printf("ua = %q\n", uaSalt) //nolint: forbidigo

	return nil
}

func newSalt() (string, error) {
	buf := make([]byte, saltBytes)

	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cannot read random bytes: %w", err)
	}

	return hex.EncodeToString(buf), nil
}
