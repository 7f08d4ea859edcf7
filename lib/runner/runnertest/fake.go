package runnertest

import (
	"context"
	"io"
)

// Call records one command invocation against the fake.
type Call struct {
	Name  string
	Args  []string
	Stdin []byte
}

// Fake is a scripted runner.Runner for tests. Handle decides the response
// for each call; a nil Handle makes every command succeed with no output.
// Stream writes the handler's output to the destination writer.
type Fake struct {
	Calls  []Call
	Handle func(c Call) ([]byte, error)
}

func (f *Fake) record(name string, args []string, stdin []byte) Call {
	c := Call{Name: name, Args: args, Stdin: stdin}
	f.Calls = append(f.Calls, c)
	return c
}

func (f *Fake) respond(c Call) ([]byte, error) {
	if f.Handle == nil {
		return nil, nil
	}
	return f.Handle(c)
}

func (f *Fake) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return f.respond(f.record(name, args, nil))
}

func (f *Fake) CombinedOutput(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	var in []byte
	if stdin != nil {
		in, _ = io.ReadAll(stdin)
	}
	return f.respond(f.record(name, args, in))
}

func (f *Fake) Run(ctx context.Context, name string, args ...string) error {
	_, err := f.respond(f.record(name, args, nil))
	return err
}

func (f *Fake) Stream(ctx context.Context, w io.Writer, name string, args ...string) error {
	out, err := f.respond(f.record(name, args, nil))
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
