// Package scene evaluates Lisp scene scripts that describe collider
// bodies, the distance field grid, particle sources and stepper constants.
// Scripts run in a sandboxed zygomys environment and produce a Description.
package scene

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	zygo "github.com/glycerine/zygomys/zygo"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Engine wraps the zygomys interpreter. It is safe for concurrent use;
// each call to Evaluate creates a fresh sandboxed environment.
type Engine struct {
	// Logger receives a line per failed evaluation. Nil means log.Default().
	Logger *log.Logger

	mu         sync.Mutex
	generation uint64
}

// NewEngine creates a new Engine instance.
func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

// Evaluate runs a scene script and returns the description it built.
//
// Return semantics:
//   - On success: returns description + nil errors + nil error
//   - On parse/eval failure: returns nil description + eval errors + nil error
//   - On fatal failure (timeout, panic, superseded): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*Description, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		d, evalErrs, err := e.evaluate(source)
		ch <- evalResult{desc: d, errors: evalErrs, err: err}
	}()

	d, evalErrs, err := waitWithTimeout(ch, gen, &e.mu, &e.generation)
	if len(evalErrs) > 0 {
		e.logger().Printf("scene: %d evaluation error(s), first: %v", len(evalErrs), evalErrs[0])
	}
	return d, evalErrs, err
}

// EvaluateFile reads and evaluates a script. Relative paths in the script
// resolve against the script's directory.
func (e *Engine) EvaluateFile(path string) (*Description, []EvalError, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		e.logger().Printf("Failed to read scene %s: %v", path, err)
		return nil, nil, fmt.Errorf("scene: read %s: %w", path, err)
	}
	d, evalErrs, err := e.Evaluate(string(src))
	if d != nil {
		d.Dir = filepath.Dir(path)
	}
	return d, evalErrs, err
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (*Description, []EvalError, error) {
	d := NewDescription()

	// Empty source is a valid program that produces an empty description.
	if strings.TrimSpace(source) == "" {
		return d, nil, nil
	}

	// Sandbox mode keeps scripts away from the filesystem and syscalls;
	// builtins only record paths for the caller to open.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	registerBuiltins(env, d)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		return nil, parseZygomysError(err), nil
	}
	return d, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError
// values, extracting the line number when the message carries one.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}

	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
