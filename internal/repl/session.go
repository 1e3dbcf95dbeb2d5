package repl

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/danmuck/mantra/internal/extension"
	"github.com/danmuck/mantra/internal/fiber"
	"github.com/danmuck/mantra/internal/parser"
	"github.com/danmuck/mantra/internal/pool"
	"github.com/danmuck/mantra/internal/rules"
	"github.com/danmuck/mantra/internal/term"
	"github.com/rs/zerolog/log"
)

const FiberName = "repl"

var answer = term.Intern("answer")

const helpText = `commands:
  #load <path>     register a rule module from a file
  #extend <name>   load a native extension
  #steps           toggle step-by-step tracing
  #slow            toggle the delay between traced steps
  #fibers          list pool fibers
  #modules         list registered modules
  #help            show this text
  #quit            leave
`

type Options struct {
	Prompt    string
	SlowDelay time.Duration
}

// LineReader is satisfied by *liner.State.
type LineReader interface {
	Prompt(prompt string) (string, error)
}

// Session holds REPL state between inputs.
type Session struct {
	pool   *pool.Pool
	rules  *rules.RuleSet
	loader *extension.Loader
	out    io.Writer
	opts   Options

	fiber  *fiber.Fiber
	answer []term.Term
	steps  bool
	slow   bool
	sleep  func(time.Duration)
}

func NewSession(p *pool.Pool, rs *rules.RuleSet, loader *extension.Loader, out io.Writer, opts Options) *Session {
	return &Session{
		pool:   p,
		rules:  rs,
		loader: loader,
		out:    out,
		opts:   opts,
		fiber:  fiber.New(FiberName),
		sleep:  time.Sleep,
	}
}

// Answer is the result of the last evaluated input.
func (s *Session) Answer() []term.Term {
	return term.CopyAll(s.answer)
}

// Run reads lines until EOF or #quit. An aborted prompt discards the line.
func (s *Session) Run(in LineReader, remember func(string)) error {
	for {
		line, err := in.Prompt(s.opts.Prompt)
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(s.out)
			return nil
		}
		if errors.Is(err, ErrPromptAborted) {
			continue
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if remember != nil {
			remember(line)
		}
		if quit := s.Execute(line); quit {
			return nil
		}
	}
}

// Execute handles one input line and reports whether the loop should stop.
func (s *Session) Execute(line string) bool {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "#") {
		return s.command(strings.Fields(trimmed))
	}
	s.evaluate(trimmed)
	return false
}

func (s *Session) evaluate(src string) {
	terms, err := parser.Parse(src)
	if err != nil {
		fmt.Fprintf(s.out, "parse error: %v\n", err)
		return
	}
	if len(terms) == 0 {
		return
	}

	s.fiber.Reset()
	s.fiber.Receive(s.substitute(terms))

	if s.steps {
		err = s.trace()
	} else {
		_, err = s.fiber.Evaluate(s.rules, false)
	}
	if err != nil {
		fmt.Fprintf(s.out, "fault: %v\n", err)
	}
	s.answer = s.fiber.Snapshot()
	fmt.Fprintln(s.out, term.Format(s.answer))
}

// substitute splices the previous answer over every top-level `answer`.
func (s *Session) substitute(terms []term.Term) []term.Term {
	out := make([]term.Term, 0, len(terms))
	for _, t := range terms {
		if t.Is(answer) {
			out = append(out, term.CopyAll(s.answer)...)
			continue
		}
		out = append(out, t)
	}
	return out
}

func (s *Session) trace() error {
	s.fiber.Flush()
	for {
		fmt.Fprintln(s.out, s.fiber.String())
		if s.slow {
			s.sleep(s.opts.SlowDelay)
		}
		st, err := s.fiber.Step(s.rules)
		if err != nil {
			return err
		}
		if st == fiber.Blocked {
			break
		}
	}
	return nil
}

func (s *Session) command(fields []string) bool {
	switch fields[0] {
	case "#quit", "#exit":
		return true
	case "#help":
		fmt.Fprint(s.out, helpText)
	case "#steps":
		s.steps = !s.steps
		fmt.Fprintf(s.out, "steps %s\n", onOff(s.steps))
	case "#slow":
		s.slow = !s.slow
		fmt.Fprintf(s.out, "slow %s\n", onOff(s.slow))
	case "#load":
		if len(fields) < 2 {
			fmt.Fprintln(s.out, "usage: #load <path>")
			return false
		}
		s.load(fields[1])
	case "#extend":
		if len(fields) < 2 {
			fmt.Fprintln(s.out, "usage: #extend <name>")
			return false
		}
		if s.loader == nil {
			fmt.Fprintln(s.out, "extensions are disabled")
			return false
		}
		if err := s.loader.Load(fields[1]); err != nil {
			log.Error().Err(err).Str("extension", fields[1]).Msg("repl.Session.command extend failed")
			fmt.Fprintf(s.out, "can't load extension %s: %v\n", fields[1], err)
			return false
		}
		fmt.Fprintf(s.out, "extended %s\n", fields[1])
	case "#fibers":
		for _, info := range s.pool.Fibers() {
			fmt.Fprintf(s.out, "%s worker=%d %s\n", info.Name, info.Worker, term.Format(info.Tape))
		}
	case "#modules":
		for _, info := range s.rules.Modules() {
			fmt.Fprintf(s.out, "%s rules=%d active=%v\n", info.Name, info.Rules, info.Active)
		}
	default:
		fmt.Fprintf(s.out, "unknown command %s, try #help\n", fields[0])
	}
	return false
}

func (s *Session) load(path string) {
	m, diags, err := parser.LoadFile(path)
	if err != nil {
		fmt.Fprintf(s.out, "can't load %s: %v\n", path, err)
		return
	}
	for _, d := range diags {
		fmt.Fprintf(s.out, "%s: %v\n", path, d)
	}
	if err := s.rules.Register(m, true); err != nil {
		fmt.Fprintf(s.out, "can't register %s: %v\n", path, err)
		return
	}
	fmt.Fprintf(s.out, "loaded %s (%d rules)\n", m.Name(), m.Len())
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
