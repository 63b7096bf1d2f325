package paymentguard

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

var ErrInvalidFingerprint = errors.New("payment fingerprint mismatch")

// Fingerprinter issues and verifies keyed digests binding a payment
// attempt to its booking, amount and timestamp. Clients echo the
// fingerprint back on submission; a mismatch means the amount or booking
// was tampered with in transit.
type Fingerprinter struct {
	secret []byte
}

func NewFingerprinter(secret string) (*Fingerprinter, error) {
	if secret == "" {
		return nil, errors.New("fingerprint secret is required")
	}
	return &Fingerprinter{secret: []byte(secret)}, nil
}

// Generate returns the hex HMAC-SHA256 over the attempt's identifying
// fields. issuedAt is unix seconds.
func (f *Fingerprinter) Generate(bookingID string, amount float64, issuedAt int64) string {
	mac := hmac.New(sha256.New, f.secret)
	fmt.Fprintf(mac, "%s|%.2f|%d", bookingID, amount, issuedAt)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the digest and compares in constant time.
func (f *Fingerprinter) Verify(fingerprint, bookingID string, amount float64, issuedAt int64) error {
	expected := f.Generate(bookingID, amount, issuedAt)
	if !hmac.Equal([]byte(expected), []byte(fingerprint)) {
		return ErrInvalidFingerprint
	}
	return nil
}
