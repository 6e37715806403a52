// Package qrpay builds the EMV-style payment payload shown as a QR code on the
// deposit payment step, and the bank deeplinks that carry it.
package qrpay

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// ChecksumTag precedes the 4-character checksum at the end of a payload.
	ChecksumTag    = "6304"
	checksumLength = 4

	// PayloadPlaceholder is replaced by the encoded payload in deeplink templates.
	PayloadPlaceholder = "{payload}"
)

// Field tags used by Payload.
const (
	TagFormat   = "00"
	TagInit     = "01"
	TagMerchant = "32"
	TagCurrency = "53"
	TagAmount   = "54"
	TagName     = "59"
	TagCity     = "60"

	tagMerchantAccount = "00"
)

var (
	ErrInvalidTag    = errors.New("field tag must be two digits")
	ErrValueTooLong  = errors.New("field value longer than 99 bytes")
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Field is one tagged value of the payload.
type Field struct {
	Tag   string
	Value string
}

// Merchant identifies the receiving account.
type Merchant struct {
	Account  string
	Name     string
	City     string
	Currency string
}

// Encode concatenates fields as TAG + LEN(2, zero-padded) + VALUE.
func Encode(fields ...Field) (string, error) {
	var b strings.Builder
	for _, f := range fields {
		if len(f.Tag) != 2 || f.Tag[0] < '0' || f.Tag[0] > '9' || f.Tag[1] < '0' || f.Tag[1] > '9' {
			return "", fmt.Errorf("%w: %q", ErrInvalidTag, f.Tag)
		}
		if len(f.Value) > 99 {
			return "", fmt.Errorf("%w: tag %s", ErrValueTooLong, f.Tag)
		}
		fmt.Fprintf(&b, "%s%02d%s", f.Tag, len(f.Value), f.Value)
	}
	return b.String(), nil
}

// Checksum returns the last 4 lowercase hex characters of the SHA-256 digest of s.
func Checksum(s string) string {
	sum := sha256.Sum256([]byte(s))
	h := hex.EncodeToString(sum[:])
	return h[len(h)-checksumLength:]
}

// Seal appends the checksum tag and the checksum computed over everything
// before the checksum itself.
func Seal(body string) string {
	prefix := body + ChecksumTag
	return prefix + Checksum(prefix)
}

// Verify reports whether payload ends with a valid checksum.
func Verify(payload string) bool {
	n := len(payload) - checksumLength
	if n < len(ChecksumTag) || payload[n-len(ChecksumTag):n] != ChecksumTag {
		return false
	}
	return Checksum(payload[:n]) == payload[n:]
}

// Payload builds a sealed dynamic payload for amount. The amount is encoded
// in minor units.
func Payload(m Merchant, amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", ErrInvalidAmount
	}
	account, err := Encode(Field{Tag: tagMerchantAccount, Value: m.Account})
	if err != nil {
		return "", err
	}

	fields := []Field{
		{Tag: TagFormat, Value: "01"},
		{Tag: TagInit, Value: "12"},
		{Tag: TagMerchant, Value: account},
		{Tag: TagCurrency, Value: m.Currency},
		{Tag: TagAmount, Value: amount.Shift(2).Round(0).String()},
	}
	if m.Name != "" {
		fields = append(fields, Field{Tag: TagName, Value: m.Name})
	}
	if m.City != "" {
		fields = append(fields, Field{Tag: TagCity, Value: m.City})
	}

	body, err := Encode(fields...)
	if err != nil {
		return "", err
	}
	return Seal(body), nil
}

// Links fills every bank deeplink template with the escaped payload.
func Links(templates map[string]string, payload string) map[string]string {
	escaped := url.PathEscape(payload)
	out := make(map[string]string, len(templates))
	for bank, tmpl := range templates {
		if strings.Contains(tmpl, PayloadPlaceholder) {
			out[bank] = strings.ReplaceAll(tmpl, PayloadPlaceholder, escaped)
		} else {
			out[bank] = tmpl + escaped
		}
	}
	return out
}
