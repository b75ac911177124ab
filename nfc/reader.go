package nfc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ellemouton/lnurlw/logger"
)

// ErrUnsupported is returned when the platform cannot scan for tags.
var ErrUnsupported = errors.New("nfc: near-field scanning is not supported")

// Reader owns the scan session of a screen. It decodes the first record of
// every tag read and publishes the text; read errors are published
// separately and never end the session.
type Reader struct {
	platform Platform
	texts    *Feed[string]
	errs     *Feed[error]

	mu     sync.Mutex
	handle *ScanHandle
}

func NewReader(p Platform, d *Dispatcher) *Reader {
	return &Reader{
		platform: p,
		texts:    NewFeed[string](d),
		errs:     NewFeed[error](d),
	}
}

// ScanHandle stops the scan session it was returned for.
type ScanHandle struct {
	reader *Reader
	cancel context.CancelFunc
	once   sync.Once
}

// Stop ends the scan session. It is safe to call more than once.
func (h *ScanHandle) Stop() {
	h.once.Do(func() {
		h.cancel()

		h.reader.mu.Lock()
		if h.reader.handle == h {
			h.reader.handle = nil
		}
		h.reader.mu.Unlock()

		logger.Logger.Debug().Msg("NFC scan stopped")
	})
}

// StartScan begins a scan session. While a session is active further calls
// return the active handle.
func (r *Reader) StartScan(ctx context.Context) (*ScanHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle != nil {
		return r.handle, nil
	}

	if r.platform == nil || !r.platform.Supported() {
		logger.Logger.Error().Msg("NFC is not supported")
		return nil, ErrUnsupported
	}

	scanCtx, cancel := context.WithCancel(ctx)
	err := r.platform.Scanner().Scan(scanCtx, r.onReading, r.onReadingError)
	if err != nil {
		cancel()
		logger.Logger.Error().Err(err).Msg("Scan failed to start")
		return nil, fmt.Errorf("scan failed to start: %w", err)
	}

	logger.Logger.Info().Msg("NFC scan started successfully")

	r.handle = &ScanHandle{reader: r, cancel: cancel}
	return r.handle, nil
}

// Active reports whether a scan session is running.
func (r *Reader) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.handle != nil
}

// Stop ends the active scan session, if any.
func (r *Reader) Stop() {
	r.mu.Lock()
	h := r.handle
	r.mu.Unlock()

	if h != nil {
		h.Stop()
	}
}

func (r *Reader) onReading(msg Message) {
	logger.Logger.Debug().Int("records", len(msg.Records)).Msg("NFC tag read")

	var text string
	if len(msg.Records) > 0 {
		text = Decode(msg.Records[0])
	} else {
		logger.Logger.Debug().Msg("NFC message has no records")
	}

	r.texts.Publish(text)
}

func (r *Reader) onReadingError(err error) {
	if err == nil {
		err = errors.New("unknown read error")
	}

	logger.Logger.Error().Err(err).
		Msg("Cannot read data from the NFC tag. Try another one?")

	r.errs.Publish(err)
}

// OnText registers handler for the decoded text of every tap. The text is
// empty when the tag carried nothing usable.
func (r *Reader) OnText(handler func(string)) (cancel func()) {
	return r.texts.Subscribe(handler)
}

// OnError registers handler for read errors.
func (r *Reader) OnError(handler func(error)) (cancel func()) {
	return r.errs.Subscribe(handler)
}
