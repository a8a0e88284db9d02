// Package command answers outbound requests by running local processes. Each
// operation maps to one allow-listed command: the request payload is written
// to its stdin as JSON and whatever it prints on stdout becomes the reply.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
)

// ErrNotRegistered is the cause of the IOException returned for operations
// without a registered command.
var ErrNotRegistered = errors.New("command not registered")

// Environment variables set for every command.
const (
	EnvOperation = "WEFT_OPERATION"
	EnvSession   = "WEFT_SESSION_ID"
	EnvResource  = "WEFT_RESOURCE_PATH"
)

// FaultPrefix marks a stdout line naming a fault instead of a reply, as in
// "fault: NotFound". The rest of the output, if any, is the fault payload.
const FaultPrefix = "fault:"

// Command is an allowed command line.
type Command struct {
	Path string
	Args []string
	Env  map[string]string
}

// Runner executes the command registered for each operation.
type Runner struct {
	registry map[string]Command
	baseDir  string
	logger   *slog.Logger
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a runner with an empty allow-list.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[string]Command),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register allows cmd to answer operation.
func (r *Runner) Register(operation string, cmd Command) {
	r.registry[operation] = cmd
}

// NewPort creates an output port answered by r.
func NewPort(name string, r *Runner, opts ...memory.PortOption) *memory.Port {
	return memory.NewFuncPort(name, r.Handle, opts...)
}

// Handle runs the command for req and answers with its output, which also
// acknowledges one-way requests. A failing command yields an IOException
// carrying its stderr, unless it printed a fault line.
func (r *Runner) Handle(ctx context.Context, req *domain.Message) (*domain.Message, error) {
	cmdDef, ok := r.registry[req.Operation()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, req.Operation())
	}

	// Arguments are never taken from the payload, so nothing sent by a peer
	// ends up on the command line.
	cmd := exec.CommandContext(ctx, cmdDef.Path, cmdDef.Args...)
	cmd.Dir = r.baseDir
	cmd.Env = append(cmd.Environ(),
		EnvOperation+"="+req.Operation(),
		EnvSession+"="+req.SessionID(),
		EnvResource+"="+req.ResourcePath(),
	)
	for k, v := range cmdDef.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	if p := req.Payload(); p != nil && !p.IsEmpty() {
		in, err := json.Marshal(p.Native())
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", err)
		}
		cmd.Stdin = bytes.NewReader(in)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("Running command", "operation", req.Operation(), "command", cmdDef.Path)
	err := cmd.Run()

	out := strings.TrimSpace(stdout.String())
	first, rest, _ := strings.Cut(out, "\n")
	if name, ok := strings.CutPrefix(first, FaultPrefix); ok {
		return domain.NewFaultResponse(req, domain.NewFault(strings.TrimSpace(name), parseOutput(rest))), nil
	}
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return domain.NewResponse(req, parseOutput(out)), nil
}

// parseOutput reads stdout as JSON when it parses, as text otherwise.
func parseOutput(out string) *domain.Value {
	out = strings.TrimSpace(out)
	if out == "" {
		return domain.NewValue()
	}
	dec := json.NewDecoder(strings.NewReader(out))
	dec.UseNumber()
	var native any
	if err := dec.Decode(&native); err == nil && !dec.More() {
		return domain.ValueFromNative(native)
	}
	return domain.NewString(out)
}
