// ABOUTME: Line-oriented REPL: tokenize, parse, evaluate, print
// ABOUTME: Unended statements accumulate input across lines

// Package repl implements the interactive loop over the query front-end.
package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nainya/pagestore/internal/logger"
	"github.com/nainya/pagestore/internal/metrics"
	"github.com/nainya/pagestore/pkg/stmt"
)

const (
	prompt     = "db> "
	contPrompt = "..> "
)

// REPL reads statements line by line, evaluating each one that closes
// with a semicolon. Input that tokenizes to an unended statement is kept
// and the user is asked for more, which makes multi-line statements work
// for free.
type REPL struct {
	in          io.Reader
	out         io.Writer
	log         *logger.Logger
	interactive bool
}

// New creates a REPL over the given reader and writer.
func New(in io.Reader, out io.Writer, log *logger.Logger, interactive bool) *REPL {
	return &REPL{in: in, out: out, log: log.ReplLogger(), interactive: interactive}
}

// Run processes input until EOF. Tokenizer and parser failures are
// printed with their position and do not stop the loop.
func (r *REPL) Run() error {
	sc := bufio.NewScanner(r.in)
	sc.Buffer(make([]byte, 1024), 1024*1024)

	var pending string
	r.showPrompt(pending != "")
	for sc.Scan() {
		line := sc.Text()
		if pending != "" {
			pending += "\n"
		}
		pending += line
		if pending == "" {
			r.showPrompt(false)
			continue
		}

		tokens, err := stmt.Tokenize(pending)
		if errors.Is(err, stmt.ErrUnendedStmt) {
			// Politely ask for the rest of the statement.
			r.showPrompt(true)
			continue
		}
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			metrics.Shared().RecordStatement("tokenize_error")
			pending = ""
			r.showPrompt(false)
			continue
		}
		r.evalTokens(pending, tokens)
		pending = ""
		r.showPrompt(false)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("repl: read input: %w", err)
	}
	return nil
}

// evalTokens parses and evaluates every statement in the token sequence.
func (r *REPL) evalTokens(input string, tokens []stmt.Token) {
	for len(tokens) > 0 {
		start := time.Now()
		node, consumed, err := stmt.Parse(tokens)
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			r.log.LogStatement(input, time.Since(start), err)
			metrics.Shared().RecordStatement("parse_error")
			return
		}
		tokens = tokens[consumed:]
		// The statement layer consumes the terminating semicolon the
		// parser leaves behind.
		if len(tokens) == 0 || tokens[0].Type != stmt.TokSemicolon {
			var err error = fmt.Errorf("%w: expected semicolon", stmt.ErrUnexpectedToken)
			if len(tokens) > 0 {
				err = &stmt.TokenError{Tok: tokens[0]}
			}
			fmt.Fprintf(r.out, "error: %v\n", err)
			metrics.Shared().RecordStatement("parse_error")
			return
		}
		tokens = tokens[1:]

		val, err := node.Eval()
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			r.log.LogStatement(input, time.Since(start), err)
			metrics.Shared().RecordStatement("eval_error")
			continue
		}
		fmt.Fprintln(r.out, val.String())
		r.log.LogStatement(input, time.Since(start), nil)
		metrics.Shared().RecordStatement("ok")
	}
}

func (r *REPL) showPrompt(continuation bool) {
	if !r.interactive {
		return
	}
	if continuation {
		fmt.Fprint(r.out, contPrompt)
	} else {
		fmt.Fprint(r.out, prompt)
	}
}
