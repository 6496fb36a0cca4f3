package utils

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/Dan9191/bank-cards/internal/models"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	MinCardLength = 13
	MaxCardLength = 19

	// MaskPrefix replaces everything but the last four digits
	MaskPrefix = "**** **** **** "
	// PlaceholderMask is shown when a stored number can no longer be decrypted
	PlaceholderMask = "**** **** **** ****"
)

// HKDF info strings keep the sealing key and the fingerprint key independent.
var (
	vaultInfo       = []byte("bank-cards/pan-vault/v1")
	fingerprintInfo = []byte("bank-cards/pan-fingerprint/v1")
)

// Vault encrypts, masks and validates card numbers.
// Ciphertexts are XChaCha20-Poly1305 sealed with a fresh random nonce per call,
// so equal PANs never produce equal ciphertexts.
type Vault struct {
	key    []byte
	macKey []byte
}

// NewVault builds a vault from the configured secret.
// A 64-character hex secret is used as the raw 32-byte key; any other
// non-empty secret is stretched with HKDF-SHA256.
func NewVault(secret string) (*Vault, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, models.EncryptionError("encryption key is empty", nil)
	}

	key, err := hex.DecodeString(secret)
	if err != nil || len(key) != chacha20poly1305.KeySize {
		if key, err = deriveKey([]byte(secret), vaultInfo); err != nil {
			return nil, models.EncryptionError("failed to derive encryption key", err)
		}
	}

	macKey, err := deriveKey(key, fingerprintInfo)
	if err != nil {
		return nil, models.EncryptionError("failed to derive fingerprint key", err)
	}
	return &Vault{key: key, macKey: macKey}, nil
}

func deriveKey(secret, info []byte) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, info), key); err != nil {
		return nil, err
	}
	return key, nil
}

// Fingerprint returns a keyed HMAC of the card digits. Equal numbers give equal
// fingerprints, which lets storage enforce uniqueness without comparing ciphertexts.
func (v *Vault) Fingerprint(pan string) string {
	h := hmac.New(sha256.New, v.macKey)
	h.Write([]byte(DigitsOnly(pan)))
	return hex.EncodeToString(h.Sum(nil))
}

// Encrypt seals the digits of a card number and returns base64 text
func (v *Vault) Encrypt(pan string) (string, error) {
	if strings.TrimSpace(pan) == "" {
		return "", models.EncryptionError("card number to encrypt is empty", nil)
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", models.EncryptionError("failed to create cipher", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(pan)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", models.EncryptionError("failed to generate nonce", err)
	}

	// Nonce is prepended to the sealed box
	sealed := aead.Seal(nonce, nonce, []byte(DigitsOnly(pan)), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", models.EncryptionError("ciphertext is empty", nil)
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", models.EncryptionError("failed to decode ciphertext", err)
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", models.EncryptionError("failed to create cipher", err)
	}

	if len(data) < aead.NonceSize()+aead.Overhead() {
		return "", models.EncryptionError(fmt.Sprintf("ciphertext too short: %d bytes", len(data)), nil)
	}

	nonce, sealed := data[:aead.NonceSize()], data[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", models.EncryptionError("failed to open ciphertext", err)
	}
	return string(plain), nil
}

// Mask returns the display form of a card number: MaskPrefix plus the last four digits
func Mask(pan string) (string, error) {
	digits := DigitsOnly(pan)
	if len(digits) < MinCardLength || len(digits) > MaxCardLength {
		return "", models.InvalidCardDataf("card number must contain %d to %d digits, got %d",
			MinCardLength, MaxCardLength, len(digits))
	}
	return MaskPrefix + digits[len(digits)-4:], nil
}

// MaskStored decrypts and masks a stored ciphertext. On failure it returns
// PlaceholderMask together with the error so callers can still display something.
func (v *Vault) MaskStored(ciphertext string) (string, error) {
	pan, err := v.Decrypt(ciphertext)
	if err != nil {
		return PlaceholderMask, err
	}
	masked, err := Mask(pan)
	if err != nil {
		return PlaceholderMask, err
	}
	return masked, nil
}

// IsValidPAN checks the digit count and the Luhn checksum
func IsValidPAN(candidate string) bool {
	digits := DigitsOnly(candidate)
	if len(digits) < MinCardLength || len(digits) > MaxCardLength {
		return false
	}
	return luhnSum(digits)%10 == 0
}

// ValidatePAN is IsValidPAN returning a validation error
func ValidatePAN(candidate string) error {
	if !IsValidPAN(candidate) {
		return models.Validationf("invalid card number")
	}
	return nil
}

// DigitsOnly strips every non-digit character
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// luhnSum walks right to left doubling every second digit.
func luhnSum(digits string) int {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum
}
