package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Password hashing schemes. The scheme name prefixes the stored hash.
const (
	SchemeArgon2id = "argon2id"
	SchemeBcrypt   = "bcrypt"
	SchemeSHA512   = "sha512"
)

const schemeSeparator = "$"

// ErrUnknownHashScheme is returned when a stored hash has an unknown prefix.
var ErrUnknownHashScheme = goerrors.New("unknown password hash scheme", goerrors.CategoryInternal).
	WithTextCode("UNKNOWN_HASH_SCHEME").
	WithCode(goerrors.CodeInternal)

// SHA512Hasher is the single round salted digest: sha512(password + salt).
// Kept so credentials created by older deployments keep verifying.
type SHA512Hasher struct{}

func (SHA512Hasher) digest(password, salt string) string {
	sum := sha512.Sum512([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}

func (h SHA512Hasher) Hash(password, salt string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}
	return SchemeSHA512 + schemeSeparator + h.digest(password, salt), nil
}

// Compare accepts both the prefixed form and a bare hex digest.
func (h SHA512Hasher) Compare(password, salt, encoded string) (bool, error) {
	encoded = strings.TrimPrefix(encoded, SchemeSHA512+schemeSeparator)
	want := h.digest(password, salt)
	return subtle.ConstantTimeCompare([]byte(want), []byte(encoded)) == 1, nil
}

// Argon2Hasher derives an argon2id key from password and salt.
type Argon2Hasher struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
}

// DefaultArgon2Hasher uses the RFC 9106 second recommended parameters.
func DefaultArgon2Hasher() Argon2Hasher {
	return Argon2Hasher{Time: 3, Memory: 64 * 1024, Threads: 4, KeyLen: 32}
}

func (h Argon2Hasher) Hash(password, salt string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}
	key := argon2.IDKey([]byte(password), []byte(salt), h.Time, h.Memory, h.Threads, h.KeyLen)
	return fmt.Sprintf("%s$v=%d$m=%d,t=%d,p=%d$%s",
		SchemeArgon2id,
		argon2.Version,
		h.Memory, h.Time, h.Threads,
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Compare reads the cost parameters from the encoded hash, so parameter
// upgrades do not invalidate existing hashes.
func (h Argon2Hasher) Compare(password, salt, encoded string) (bool, error) {
	parts := strings.Split(encoded, schemeSeparator)
	if len(parts) != 4 || parts[0] != SchemeArgon2id {
		return false, ErrUnknownHashScheme
	}

	var version int
	if _, err := fmt.Sscanf(parts[1], "v=%d", &version); err != nil {
		return false, internalError(err, "invalid argon2 version")
	}
	if version != argon2.Version {
		return false, ErrUnknownHashScheme
	}

	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[2], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, internalError(err, "invalid argon2 parameters")
	}

	want, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return false, internalError(err, "invalid argon2 key encoding")
	}

	got := argon2.IDKey([]byte(password), []byte(salt), time, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

// BcryptHasher hashes with bcrypt. bcrypt reads at most 72 bytes, so the
// password is first reduced to a salt keyed HMAC-SHA256 digest that always
// fits and keeps every password byte and the salt significant.
type BcryptHasher struct {
	Cost int
}

func (BcryptHasher) prehash(password, salt string) []byte {
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}

func (h BcryptHasher) cost() int {
	if h.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return h.Cost
}

func (h BcryptHasher) Hash(password, salt string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}
	b, err := bcrypt.GenerateFromPassword(h.prehash(password, salt), h.cost())
	if err != nil {
		return "", err
	}
	return SchemeBcrypt + schemeSeparator + string(b), nil
}

func (h BcryptHasher) Compare(password, salt, encoded string) (bool, error) {
	encoded = strings.TrimPrefix(encoded, SchemeBcrypt+schemeSeparator)
	if err := bcrypt.CompareHashAndPassword([]byte(encoded), h.prehash(password, salt)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MultiHasher hashes with the preferred scheme and verifies any known one.
type MultiHasher struct {
	preferred string
	hashers   map[string]PasswordHasher
}

var _ PasswordHasher = (*MultiHasher)(nil)

// NewPasswordHasher returns a MultiHasher that writes scheme hashes and
// reads all supported schemes.
func NewPasswordHasher(scheme string) (*MultiHasher, error) {
	m := &MultiHasher{
		preferred: scheme,
		hashers: map[string]PasswordHasher{
			SchemeArgon2id: DefaultArgon2Hasher(),
			SchemeBcrypt:   BcryptHasher{},
			SchemeSHA512:   SHA512Hasher{},
		},
	}
	if _, ok := m.hashers[scheme]; !ok {
		return nil, goerrors.New("unsupported password scheme", goerrors.CategoryBadInput).
			WithTextCode("UNSUPPORTED_PASSWORD_SCHEME").
			WithMetadata(map[string]any{"scheme": scheme})
	}
	return m, nil
}

// WithHasher registers or replaces the hasher for scheme.
func (m *MultiHasher) WithHasher(scheme string, h PasswordHasher) *MultiHasher {
	m.hashers[scheme] = h
	return m
}

func (m *MultiHasher) Hash(password, salt string) (string, error) {
	return m.hashers[m.preferred].Hash(password, salt)
}

func (m *MultiHasher) Compare(password, salt, encoded string) (bool, error) {
	scheme := SchemeOf(encoded)
	h, ok := m.hashers[scheme]
	if !ok {
		return false, ErrUnknownHashScheme
	}
	return h.Compare(password, salt, encoded)
}

// SchemeOf returns the scheme prefix of an encoded hash. Unprefixed hashes
// are treated as legacy sha512 digests.
func SchemeOf(encoded string) string {
	if i := strings.Index(encoded, schemeSeparator); i > 0 {
		return encoded[:i]
	}
	return SchemeSHA512
}

// NeedsRehash reports whether encoded was produced by a scheme other than
// the preferred one.
func (m *MultiHasher) NeedsRehash(encoded string) bool {
	return SchemeOf(encoded) != m.preferred
}
