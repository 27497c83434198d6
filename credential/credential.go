// Package credential hashes and verifies passwords and checks the format of
// user-supplied credentials. Everything here is a pure function of its inputs
// apart from the random source used for salts and generated passwords.
package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/crypto/argon2"
)

const (
	// SaltBytes is the size of a generated salt before hex encoding.
	SaltBytes = 16

	// DefaultGeneratedLength is used by GenerateSecurePassword when length <= 0.
	DefaultGeneratedLength = 12

	// MinPasswordLength is the shortest password ValidatePasswordStrength accepts.
	MinPasswordLength = 8

	letters     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits      = "0123456789"
	punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

// Params tunes the Argon2id key derivation.
type Params struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
	KeyLen    uint32
}

// DefaultParams are the RFC 9106 second recommended option.
var DefaultParams = Params{Time: 3, MemoryKiB: 64 * 1024, Threads: 4, KeyLen: 32}

var params = DefaultParams

// SetParams replaces the hashing parameters used by HashPassword. Zero fields
// keep their default value. VerifyPassword reads the parameters from each hash.
func SetParams(p Params) {
	if p.Time == 0 {
		p.Time = DefaultParams.Time
	}
	if p.MemoryKiB == 0 {
		p.MemoryKiB = DefaultParams.MemoryKiB
	}
	if p.Threads == 0 {
		p.Threads = DefaultParams.Threads
	}
	if p.KeyLen == 0 {
		p.KeyLen = DefaultParams.KeyLen
	}
	params = p
}

// Strength rule failures, checked in this order.
var (
	ErrTooShort    = fmt.Errorf("Password must be at least %d characters", MinPasswordLength)
	ErrNoUppercase = errors.New("Password must contain at least one uppercase letter")
	ErrNoLowercase = errors.New("Password must contain at least one lowercase letter")
	ErrNoDigit     = errors.New("Password must contain at least one digit")
)

var emailPattern = regexp.MustCompile(`(?i)^[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}$`)

// NewSalt returns SaltBytes of cryptographically random data, hex encoded.
func NewSalt() (string, error) {
	b := make([]byte, SaltBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashPassword derives an Argon2id digest from password and salt. An empty
// salt is replaced by a fresh random one. The digest is encoded together with
// the parameters that produced it, as $argon2id$v=19$m=..,t=..,p=..$<hex>,
// and is deterministic for a given (password, salt) pair under fixed params.
func HashPassword(password, salt string) (hash, usedSalt string, err error) {
	if salt == "" {
		if salt, err = NewSalt(); err != nil {
			return "", "", err
		}
	}
	return encodeHash(password, salt, params), salt, nil
}

func encodeHash(password, salt string, p Params) string {
	key := argon2.IDKey([]byte(password), []byte(salt), p.Time, p.MemoryKiB, p.Threads, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s",
		argon2.Version, p.MemoryKiB, p.Time, p.Threads, hex.EncodeToString(key))
}

var errMalformedHash = errors.New("malformed password hash")

// decodeHash recovers the parameters an encoded hash was made with.
func decodeHash(hash string) (Params, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 5 || parts[0] != "" || parts[1] != "argon2id" {
		return Params{}, errMalformedHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Params{}, errMalformedHash
	}
	var p Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Time, &p.Threads); err != nil {
		return Params{}, errMalformedHash
	}
	key, err := hex.DecodeString(parts[4])
	if err != nil || len(key) == 0 || p.Time == 0 || p.MemoryKiB == 0 || p.Threads == 0 {
		return Params{}, errMalformedHash
	}
	p.KeyLen = uint32(len(key))
	return p, nil
}

// VerifyPassword reports whether password hashes to hash under salt, using
// the parameters recorded in hash rather than the current ones.
func VerifyPassword(password, hash, salt string) bool {
	if salt == "" {
		return false
	}
	p, err := decodeHash(hash)
	if err != nil {
		return false
	}
	got := encodeHash(password, salt, p)
	return subtle.ConstantTimeCompare([]byte(got), []byte(hash)) == 1
}

// NeedsRehash reports whether hash was made with parameters other than the
// current ones.
func NeedsRehash(hash string) bool {
	p, err := decodeHash(hash)
	return err != nil || p != params
}

// ValidatePasswordStrength returns nil for a strong password, otherwise the
// first rule it breaks.
func ValidatePasswordStrength(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return ErrTooShort
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	switch {
	case !upper:
		return ErrNoUppercase
	case !lower:
		return ErrNoLowercase
	case !digit:
		return ErrNoDigit
	}
	return nil
}

// ValidateEmail reports whether email looks like local@domain.tld.
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// GenerateSecurePassword draws length characters uniformly from letters,
// digits and ASCII punctuation.
func GenerateSecurePassword(length int) (string, error) {
	if length <= 0 {
		length = DefaultGeneratedLength
	}
	const alphabet = letters + digits + punctuation
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}
