package auth

import (
	"context"
	"sync"

	"github.com/goliatone/go-errors"
)

// StoreVerifier checks passwords against a CredentialStore.
type StoreVerifier struct {
	store  CredentialStore
	hasher PasswordHasher

	decoyOnce sync.Once
	decoy     *Credential
}

var _ CredentialVerifier = (*StoreVerifier)(nil)

// NewStoreVerifier returns a verifier over store. The hasher must be able
// to read every scheme present in the store.
func NewStoreVerifier(store CredentialStore, hasher PasswordHasher) *StoreVerifier {
	return &StoreVerifier{store: store, hasher: hasher}
}

// Verify compares the password before looking at the account state, so a
// disabled verdict is only reachable with the right password.
func (v *StoreVerifier) Verify(ctx context.Context, username, password string) (Verdict, error) {
	cred, err := v.read(ctx, username)
	if err != nil {
		return VerdictUnknownUser, err
	}
	if cred == nil {
		v.compareDecoy(password)
		return VerdictUnknownUser, nil
	}

	if !cred.Verify(v.hasher, password) {
		return VerdictBadPassword, nil
	}

	if !cred.State.IsActive() {
		return VerdictDisabled, nil
	}

	return VerdictOK, nil
}

// IsValid reports whether username exists and is active.
func (v *StoreVerifier) IsValid(ctx context.Context, username string) (bool, error) {
	cred, err := v.read(ctx, username)
	if err != nil {
		return false, err
	}
	return cred != nil && cred.State.IsActive(), nil
}

// compareDecoy runs one password comparison against a fixed credential so
// an unknown username costs the same hashing work as a wrong password.
func (v *StoreVerifier) compareDecoy(password string) {
	v.decoyOnce.Do(func() {
		const salt = "decoy-salt"
		hash, err := v.hasher.Hash("decoy-password", salt)
		if err != nil {
			return
		}
		v.decoy = &Credential{Salt: salt, PasswordHash: hash}
	})
	v.decoy.Verify(v.hasher, password)
}

// read maps a not found result to (nil, nil).
func (v *StoreVerifier) read(ctx context.Context, username string) (*Credential, error) {
	cred, err := v.store.Read(ctx, username)
	if err == nil {
		return cred, nil
	}
	if HasTextCode(err, TextCodeCredentialNotFound) || errors.IsNotFound(err) {
		return nil, nil
	}
	return nil, err
}
