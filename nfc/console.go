package nfc

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

var errScanInProgress = errors.New("nfc: a scan is already in progress")

// Console is a Platform that treats every line of its input as one tap. It is
// what the CLI uses in place of real NFC hardware.
//
// A line holds the text of a single utf-8 record. Lines of the form
// "@<encoding> <hex>" carry raw bytes in another encoding, e.g.
// "@utf-16le 6c006e00".
type Console struct {
	in io.Reader

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

func NewConsole(in io.Reader) *Console {
	return &Console{
		in:   in,
		done: make(chan struct{}),
	}
}

func (c *Console) Supported() bool {
	return true
}

func (c *Console) Permissions() Permissions {
	return consolePermissions{}
}

func (c *Console) Scanner() Scanner {
	return c
}

// Done is closed once the input is exhausted or the scan was cancelled.
func (c *Console) Done() <-chan struct{} {
	return c.done
}

func (c *Console) Scan(ctx context.Context, onReading func(Message),
	onReadingError func(error)) error {

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return errScanInProgress
	}
	c.started = true

	go func() {
		defer close(c.done)

		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			msg, err := ParseConsoleLine(line)
			if err != nil {
				onReadingError(err)
				continue
			}
			onReading(msg)
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			onReadingError(err)
		}
	}()

	return nil
}

// ParseConsoleLine turns one input line into a single record message.
func ParseConsoleLine(line string) (Message, error) {
	if !strings.HasPrefix(line, "@") {
		return Message{Records: []Record{{Data: []byte(line)}}}, nil
	}

	parts := strings.SplitN(line[1:], " ", 2)
	if len(parts) != 2 {
		return Message{}, fmt.Errorf("expected '@<encoding> <hex>', "+
			"got %q", line)
	}

	data, err := hex.DecodeString(strings.TrimSpace(parts[1]))
	if err != nil {
		return Message{}, fmt.Errorf("invalid record data: %w", err)
	}

	return Message{Records: []Record{{
		Data:     data,
		Encoding: parts[0],
	}}}, nil
}

type consolePermissions struct{}

func (consolePermissions) Query(context.Context, string) (PermissionStatus,
	error) {

	return consoleStatus{}, nil
}

type consoleStatus struct{}

func (consoleStatus) State() PermissionState {
	return PermissionGranted
}

func (consoleStatus) Listen(func(PermissionState)) func() {
	return func() {}
}
