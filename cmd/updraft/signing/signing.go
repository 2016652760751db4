package signing

import (
	"fmt"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
	"github.com/gobuffalo/envy"
	glog "github.com/magicsong/color-glog"
	"github.com/updraft-sh/updraft/cmd/updraft/constants"
)

// Signer produces armored detached PGP signatures for uploaded
// bundles. This is a publisher-side countersignature alongside the
// updater signature tauri itself checks; some distribution channels
// want a PGP trail as well.
type Signer struct {
	ring *crypto.KeyRing
}

// FromEnv builds a Signer from UPDRAFT_SIGNING_KEY, or returns nil
// when no key is configured. A nil Signer just means no .asc files.
func FromEnv() (*Signer, error) {
	armored := envy.Get(constants.EnvSigningKey, "")
	if armored == "" {
		glog.V(5).Info("no signing key in the environment, skipping countersignatures")
		return nil, nil
	}
	return New(armored, envy.Get(constants.EnvSigningPassphrase, ""))
}

func New(armoredKey, passphrase string) (*Signer, error) {
	key, err := crypto.NewKeyFromArmored(armoredKey)
	if err != nil {
		return nil, fmt.Errorf("reading signing key: %w", err)
	}
	locked, err := key.IsLocked()
	if err != nil {
		return nil, fmt.Errorf("inspecting signing key: %w", err)
	}
	if locked {
		if key, err = key.Unlock([]byte(passphrase)); err != nil {
			return nil, fmt.Errorf("unlocking signing key: %w", err)
		}
	}
	ring, err := crypto.NewKeyRing(key)
	if err != nil {
		return nil, fmt.Errorf("building keyring: %w", err)
	}
	glog.V(7).Info("PGP keyring initialised")
	return &Signer{ring: ring}, nil
}

// Sign returns an armored detached signature over data.
func (s *Signer) Sign(data []byte) (string, error) {
	sig, err := s.ring.SignDetached(crypto.NewPlainMessage(data))
	if err != nil {
		return "", err
	}
	return sig.GetArmored()
}

// Verify checks an armored detached signature produced by Sign.
func (s *Signer) Verify(data []byte, armoredSig string) error {
	sig, err := crypto.NewPGPSignatureFromArmored(armoredSig)
	if err != nil {
		return err
	}
	return s.ring.VerifyDetached(crypto.NewPlainMessage(data), sig, crypto.GetUnixTime())
}
