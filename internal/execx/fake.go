package execx

import (
	"context"
	"errors"
	"os/exec"
	"sync"
)

// Fake is a scripted Runner for tests. Handler receives every command; its
// stdout is returned by Output and copied to c.Stdout by Run.
type Fake struct {
	Handler func(c Cmd) ([]byte, error)
	// Paths maps binary names to LookPath results. Missing names are not found.
	Paths map[string]string

	mu    sync.Mutex
	calls []string
}

func (f *Fake) record(c Cmd) {
	f.mu.Lock()
	f.calls = append(f.calls, c.Line())
	f.mu.Unlock()
}

// Calls returns the command lines seen so far.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *Fake) Run(ctx context.Context, c Cmd) error {
	out, err := f.Output(ctx, c)
	if c.Stdout != nil && len(out) > 0 {
		_, _ = c.Stdout.Write(out)
	}
	return err
}

func (f *Fake) Output(ctx context.Context, c Cmd) ([]byte, error) {
	f.record(c)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Handler == nil {
		return nil, nil
	}
	return f.Handler(c)
}

func (f *Fake) LookPath(name string) (string, error) {
	if p, ok := f.Paths[name]; ok {
		return p, nil
	}
	return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
}

// ErrFake is a convenient failure for scripted handlers.
var ErrFake = errors.New("fake command failed")
