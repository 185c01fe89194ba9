package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/99designs/keyring"
	"golang.org/x/term"

	"github.com/ovaphlow/pitchfork/service-secrets/internal/credential/entity"
)

var ErrNoTerminal = errors.New("no terminal available for keyring passphrase (set SECRETGEN_KEYRING_PASSWORD)")

// PassphrasePrompt returns a keyring prompt that writes to out and reads the
// passphrase with echo disabled from fd. stdout is left untouched.
func PassphrasePrompt(out io.Writer, fd int) keyring.PromptFunc {
	return func(prompt string) (string, error) {
		if !term.IsTerminal(fd) {
			return "", ErrNoTerminal
		}
		fmt.Fprintf(out, "%s: ", prompt)
		pass, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return string(pass), nil
	}
}

// OpenKeyring opens the operator's OS keyring for service. A non-empty
// passphrase unlocks the file backend without prompting; otherwise the
// prompt goes to stderr.
func OpenKeyring(service, passphrase string) (keyring.Keyring, error) {
	prompt := PassphrasePrompt(os.Stderr, int(os.Stdin.Fd()))
	if passphrase != "" {
		prompt = keyring.FixedStringPrompt(passphrase)
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/" + service + "/credentials",
		FilePasswordFunc:         prompt,
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// KeyringSink stores each secret as its own keyring item keyed by name.
// Storing a new bundle replaces the previous values.
type KeyringSink struct {
	ring keyring.Keyring
}

func NewKeyringSink(ring keyring.Keyring) *KeyringSink {
	return &KeyringSink{ring: ring}
}

func (k *KeyringSink) Name() string { return "keyring" }

func (k *KeyringSink) Store(ctx context.Context, b *entity.Bundle) error {
	for _, e := range b.Entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := k.ring.Set(keyring.Item{
			Key:         e.Name,
			Data:        []byte(e.Value),
			Label:       e.Name,
			Description: "bundle " + b.ID,
		})
		if err != nil {
			return fmt.Errorf("setting credential %q: %w", e.Name, err)
		}
	}
	return nil
}

// Load reads names back from the keyring in the given order.
func (k *KeyringSink) Load(names []string) (*entity.Bundle, error) {
	b := &entity.Bundle{}
	for _, name := range names {
		item, err := k.ring.Get(name)
		if err != nil {
			return nil, fmt.Errorf("getting credential %q: %w", name, err)
		}
		b.Entries = append(b.Entries, entity.Entry{Name: name, Value: string(item.Data)})
	}
	return b, nil
}
