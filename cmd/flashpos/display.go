package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// terminal shows alerts on w and leaves the screen by calling back.
type terminal struct {
	w    io.Writer
	back func()

	mu sync.Mutex
}

func (t *terminal) Alert(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.w, "\n!! %s\n\n", strings.ReplaceAll(msg, "\n", "\n   "))
}

func (t *terminal) SetLoading(loading bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if loading {
		fmt.Fprintln(t.w, "Processing payment...")
	}
}

func (t *terminal) PlaySound() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := fmt.Fprint(t.w, "\a")
	return err
}

func (t *terminal) NavigateBack() {
	if t.back != nil {
		t.back()
	}
}
