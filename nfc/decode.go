package nfc

import (
	"github.com/ellemouton/lnurlw/logger"
	"golang.org/x/text/encoding/htmlindex"
)

const defaultEncoding = "utf-8"

// Decode returns the text of a record using its declared encoding. Records
// without data, with an unknown encoding label or with bytes the encoding
// cannot decode yield the empty string.
func Decode(rec Record) string {
	if len(rec.Data) == 0 {
		logger.Logger.Debug().Msg("No data found")
		return ""
	}

	label := rec.Encoding
	if label == "" {
		label = defaultEncoding
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		logger.Logger.Debug().Str("encoding", label).
			Msg("Encoding not supported")
		return ""
	}

	text, err := enc.NewDecoder().Bytes(rec.Data)
	if err != nil {
		logger.Logger.Debug().Err(err).Str("encoding", label).
			Msg("Could not decode record")
		return ""
	}

	return string(text)
}
