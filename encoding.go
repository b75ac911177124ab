package lnurlw

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

const humanReadablePart = "lnurl"

// ErrUnknownLNURL is returned when a string is neither a bech32 LNURL nor one
// of the LUD-17 schemes.
var ErrUnknownLNURL = errors.New("unrecognised LNURL")

func DecodeURL(lnurl string) (string, error) {
	// LNURLs are usually upper cased for QR codes, bech32 only rejects
	// mixed case.
	hrp, data, err := bech32.DecodeNoLimit(strings.ToLower(lnurl))
	if err != nil {
		return "", err
	}

	if hrp != humanReadablePart {
		return "", fmt.Errorf("incorrect hrp for LNURL. Expected "+
			"'%s', got '%s'", humanReadablePart, hrp)
	}

	data, err = bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func EncodeURL(url string) (string, error) {
	converted, err := bech32.ConvertBits([]byte(url), 8, 5, true)
	if err != nil {
		return "", err
	}

	str, err := bech32.Encode(humanReadablePart, converted)
	if err != nil {
		return "", err
	}

	return strings.ToUpper(str), nil
}

// ToURL turns anything a flashcard or QR code may carry into the https URL of
// the LN SERVICE. Supported forms are bech32 LNURLs (optionally prefixed with
// "lightning:"), the LUD-17 schemes and plain http(s) URLs, which may carry
// the LNURL in a "lightning" query parameter.
func ToURL(lnurl string) (string, error) {
	s := strings.TrimSpace(lnurl)
	if len(s) >= len("lightning:") &&
		strings.EqualFold(s[:len("lightning:")], "lightning:") {

		s = s[len("lightning:"):]
	}

	if !strings.Contains(s, "://") {
		if strings.HasPrefix(strings.ToLower(s), humanReadablePart+"1") {
			return DecodeURL(s)
		}

		return "", fmt.Errorf("%w: %q", ErrUnknownLNURL, s)
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnknownLNURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "lnurlw", "lnurlp", "lnurlc", "keyauth":
		u.Scheme = "https"
		if strings.HasSuffix(u.Hostname(), ".onion") {
			u.Scheme = "http"
		}

		return u.String(), nil

	case "http", "https":
		if embedded := u.Query().Get("lightning"); embedded != "" {
			return ToURL(embedded)
		}

		return u.String(), nil

	default:
		return "", fmt.Errorf("%w: unsupported scheme '%s'",
			ErrUnknownLNURL, u.Scheme)
	}
}
