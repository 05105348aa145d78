// Package console runs the interactive terminal conversation.
//
// A session moves between awaiting input and dispatching until an exit
// keyword, an interrupt or the end of input closes it:
//
//	awaiting_input -> dispatching -> awaiting_input ... -> closed
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/golang/glog"

	"github.com/zhouzirui/city-explorer/internal/model/chat"
	"github.com/zhouzirui/city-explorer/internal/model/persona"
)

const (
	// ApologyPrefix starts every reply that stands in for a failed exchange.
	ApologyPrefix = "I apologize, but I encountered an error: "
	Farewell      = "👋 Thank you for using City Explorer! Have a great time exploring!"
	rule          = "============================================================"
)

var exitKeywords = map[string]struct{}{
	"quit": {},
	"exit": {},
	"bye":  {},
	"q":    {},
}

// State is the lifecycle position of a Loop.
type State int

const (
	StateAwaitingInput State = iota
	StateDispatching
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingInput:
		return "awaiting_input"
	case StateDispatching:
		return "dispatching"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Generator produces the assistant reply for one exchange.
type Generator interface {
	GenerateResponse(ctx context.Context, p *persona.Persona, history []chat.Message, userMessage string) (*schema.Message, error)
}

// Renderer formats assistant text for the terminal.
type Renderer interface {
	Render(text string) (string, error)
}

// Option customises a Loop.
type Option func(*Loop)

// WithRenderer renders assistant replies through r.
func WithRenderer(r Renderer) Option {
	return func(l *Loop) {
		l.renderer = r
	}
}

// Loop owns the transcript of a single terminal session.
type Loop struct {
	gen        Generator
	persona    persona.Persona
	transcript *chat.Transcript
	out        io.Writer
	renderer   Renderer
	state      State
}

// New creates a loop for a persona already bound to its city.
func New(gen Generator, p persona.Persona, out io.Writer, opts ...Option) *Loop {
	l := &Loop{
		gen:        gen,
		persona:    p,
		transcript: chat.NewTranscript(),
		out:        out,
		state:      StateAwaitingInput,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsExitKeyword reports whether input ends the session.
func IsExitKeyword(input string) bool {
	_, ok := exitKeywords[strings.ToLower(strings.TrimSpace(input))]
	return ok
}

// Apology turns a failed exchange into the user-visible reply.
func Apology(err error) string {
	return fmt.Sprintf("%s%v. Please try again.", ApologyPrefix, err)
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	return l.state
}

// Transcript exposes the session history.
func (l *Loop) Transcript() *chat.Transcript {
	return l.transcript
}

// PrintBanner writes the welcome screen.
func (l *Loop) PrintBanner() {
	fmt.Fprintln(l.out, rule)
	fmt.Fprintf(l.out, "🏙️  %s\n", l.persona.Greeting())
	fmt.Fprintln(l.out, rule)
	fmt.Fprintln(l.out, "\nI can help you explore:")
	for _, topic := range l.persona.Topics {
		fmt.Fprintf(l.out, "  %s %s\n", topic.Emoji, topic.Title)
	}
	fmt.Fprintln(l.out, "\nType 'quit', 'exit', or 'bye' to end the conversation.")
	fmt.Fprintln(l.out, rule)
	fmt.Fprintln(l.out)
}

// Run reads lines from in until the session closes. An interrupt delivered
// through ctx or the end of in closes the session normally.
func (l *Loop) Run(ctx context.Context, in io.Reader) error {
	lines := NewLineReader(in)
	defer lines.Close()
	return l.RunLines(ctx, lines)
}

// RunLines is Run for a reader shared with earlier prompts.
func (l *Loop) RunLines(ctx context.Context, lines *LineReader) error {
	for l.state != StateClosed {
		if ctx.Err() != nil {
			l.close()
			return nil
		}

		fmt.Fprint(l.out, "You: ")
		line, err := lines.ReadLine(ctx)
		switch {
		case err == nil:
			l.Step(ctx, line)
		case ctx.Err() != nil, errors.Is(err, io.EOF):
			l.close()
			return nil
		default:
			l.close()
			return err
		}
	}
	return nil
}

// Step handles one line of input. Failures inside the cycle are reported
// and leave the loop awaiting input.
func (l *Loop) Step(ctx context.Context, line string) {
	if l.state == StateClosed {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			glog.Warningf("[console] recovered from panic: %v", r)
			l.state = StateAwaitingInput
			fmt.Fprintf(l.out, "\n❌ Error: %v\n", r)
			fmt.Fprint(l.out, "Please try again or type 'quit' to exit.\n\n")
		}
	}()

	input := strings.TrimSpace(line)
	if input == "" {
		return
	}

	if IsExitKeyword(input) {
		fmt.Fprintf(l.out, "\n%s\n", Farewell)
		l.state = StateClosed
		return
	}

	l.dispatch(ctx, input)
}

func (l *Loop) dispatch(ctx context.Context, input string) {
	l.state = StateDispatching
	defer func() {
		if l.state == StateDispatching {
			l.state = StateAwaitingInput
		}
	}()

	fmt.Fprint(l.out, "\n🤖 Assistant: ")

	reply, err := l.gen.GenerateResponse(ctx, &l.persona, l.transcript.Messages(), input)
	if err == nil && reply == nil {
		err = errors.New("empty response from model")
	}
	if err != nil {
		if ctx.Err() != nil {
			// Interrupted mid-request; Run reports the farewell.
			fmt.Fprintln(l.out)
			return
		}
		glog.Warningf("[console] exchange failed city=%q: %v", l.persona.City, err)
		fmt.Fprintf(l.out, "%s\n\n", Apology(err))
		return
	}

	l.transcript.AppendExchange(input, reply.Content)
	fmt.Fprintf(l.out, "%s\n\n", l.render(reply.Content))
}

func (l *Loop) render(text string) string {
	if l.renderer == nil {
		return text
	}
	out, err := l.renderer.Render(text)
	if err != nil {
		glog.Warningf("[console] markdown render failed, printing plain text: %v", err)
		return text
	}
	return strings.Trim(out, "\n")
}

func (l *Loop) close() {
	if l.state == StateClosed {
		return
	}
	l.state = StateClosed
	fmt.Fprintf(l.out, "\n\n%s\n", Farewell)
}
