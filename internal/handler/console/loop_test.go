package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/golang/glog"

	"github.com/zhouzirui/city-explorer/internal/model/chat"
	"github.com/zhouzirui/city-explorer/internal/model/persona"
)

type fakeGenerator struct {
	replies []string
	err     error
	panicOn string
	calls   int
	history [][]chat.Message
	cities  []string
}

func (f *fakeGenerator) GenerateResponse(_ context.Context, p *persona.Persona, history []chat.Message, userMessage string) (*schema.Message, error) {
	if userMessage == f.panicOn {
		panic("boom")
	}
	f.calls++
	f.history = append(f.history, history)
	f.cities = append(f.cities, p.City)
	if f.err != nil {
		return nil, f.err
	}
	reply := "ok"
	if len(f.replies) > 0 {
		reply = f.replies[0]
		f.replies = f.replies[1:]
	}
	return schema.AssistantMessage(reply, nil), nil
}

type upperRenderer struct{}

func (upperRenderer) Render(text string) (string, error) {
	return "\n" + strings.ToUpper(text) + "\n", nil
}

func newLoop(gen Generator, city string) (*Loop, *bytes.Buffer) {
	var out bytes.Buffer
	return New(gen, persona.Default().ForCity(city), &out), &out
}

func TestStepIgnoresBlankInput(t *testing.T) {
	gen := &fakeGenerator{}
	loop, out := newLoop(gen, "Lisbon")

	for _, line := range []string{"", "   ", "\t", " \t  "} {
		loop.Step(context.Background(), line)
	}

	if gen.calls != 0 {
		t.Fatalf("expected no dispatch, got %d", gen.calls)
	}
	if loop.State() != StateAwaitingInput {
		t.Fatalf("expected awaiting_input, got %s", loop.State())
	}
	if out.Len() != 0 {
		t.Fatalf("expected no output, got %q", out.String())
	}
}

func TestStepExitKeywordsCloseCaseInsensitive(t *testing.T) {
	for _, word := range []string{"quit", "EXIT", " Bye ", "q", "Q"} {
		gen := &fakeGenerator{}
		loop, out := newLoop(gen, "Lisbon")

		loop.Step(context.Background(), word)

		if loop.State() != StateClosed {
			t.Fatalf("%q: expected closed, got %s", word, loop.State())
		}
		if gen.calls != 0 {
			t.Fatalf("%q: expected no dispatch", word)
		}
		if !strings.Contains(out.String(), Farewell) {
			t.Fatalf("%q: expected farewell, got %q", word, out.String())
		}
	}
}

func TestStepNotExitKeyword(t *testing.T) {
	if IsExitKeyword("quitting") || IsExitKeyword("goodbye") {
		t.Fatal("only exact keywords should exit")
	}
}

func TestTranscriptGrowsByTwoPerExchange(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"a1", "a2", "a3"}}
	loop, _ := newLoop(gen, "Lisbon")

	inputs := []string{"u1", "u2", "u3"}
	for _, in := range inputs {
		loop.Step(context.Background(), in)
	}

	msgs := loop.Transcript().Messages()
	if len(msgs) != 2*len(inputs) {
		t.Fatalf("expected %d entries, got %d", 2*len(inputs), len(msgs))
	}
	for i, in := range inputs {
		user, assistant := msgs[2*i], msgs[2*i+1]
		if user.Role != chat.RoleUser || user.Content != in {
			t.Fatalf("entry %d: unexpected user turn %+v", 2*i, user)
		}
		if assistant.Role != chat.RoleAssistant || assistant.Content != "a"+in[1:] {
			t.Fatalf("entry %d: unexpected assistant turn %+v", 2*i+1, assistant)
		}
	}

	if len(gen.history[2]) != 4 {
		t.Fatalf("third dispatch should carry 4 prior turns, got %d", len(gen.history[2]))
	}
}

func TestLisbonScenario(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"Try Ramiro"}}
	loop, out := newLoop(gen, "Lisbon")

	loop.Step(context.Background(), "best seafood restaurant")

	if gen.cities[0] != "Lisbon" {
		t.Fatalf("expected persona bound to Lisbon, got %q", gen.cities[0])
	}
	msgs := loop.Transcript().Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(msgs))
	}
	if msgs[0].Role != chat.RoleUser || msgs[0].Content != "best seafood restaurant" {
		t.Fatalf("unexpected user entry %+v", msgs[0])
	}
	if msgs[1].Role != chat.RoleAssistant || msgs[1].Content != "Try Ramiro" {
		t.Fatalf("unexpected assistant entry %+v", msgs[1])
	}
	if !strings.Contains(out.String(), "🤖 Assistant: Try Ramiro") {
		t.Fatalf("reply not printed: %q", out.String())
	}
}

func TestServiceErrorPrintsApologyAndContinues(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("connection refused")}
	loop, out := newLoop(gen, "Lisbon")

	loop.Step(context.Background(), "hello")

	if loop.State() != StateAwaitingInput {
		t.Fatalf("expected awaiting_input, got %s", loop.State())
	}
	if loop.Transcript().Len() != 0 {
		t.Fatal("failed exchange must not be recorded")
	}

	printed := strings.TrimPrefix(out.String(), "\n🤖 Assistant: ")
	if !strings.HasPrefix(printed, ApologyPrefix) {
		t.Fatalf("expected apology prefix, got %q", printed)
	}
	if !strings.Contains(printed, "connection refused") {
		t.Fatalf("expected error detail, got %q", printed)
	}
}

func TestPanicInCycleIsReported(t *testing.T) {
	gen := &fakeGenerator{panicOn: "explode"}
	loop, out := newLoop(gen, "Lisbon")
	errorLines := glog.Stats.Error.Lines()

	loop.Step(context.Background(), "explode")

	// error 级别会同时写到 stderr，打乱终端对话
	if got := glog.Stats.Error.Lines(); got != errorLines {
		t.Fatalf("panic recovery logged %d error lines", got-errorLines)
	}

	if loop.State() != StateAwaitingInput {
		t.Fatalf("expected awaiting_input after panic, got %s", loop.State())
	}
	if !strings.Contains(out.String(), "❌ Error: boom") {
		t.Fatalf("expected error report, got %q", out.String())
	}

	loop.Step(context.Background(), "still here?")
	if gen.calls != 1 {
		t.Fatalf("loop should keep dispatching after a panic, calls=%d", gen.calls)
	}
}

func TestRendererAppliesToRepliesOnly(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"try ramiro"}}
	var out bytes.Buffer
	loop := New(gen, persona.Default().ForCity("Lisbon"), &out, WithRenderer(upperRenderer{}))

	loop.Step(context.Background(), "seafood")
	if !strings.Contains(out.String(), "TRY RAMIRO") {
		t.Fatalf("expected rendered reply, got %q", out.String())
	}
	if loop.Transcript().Messages()[1].Content != "try ramiro" {
		t.Fatal("transcript must keep the raw reply")
	}
}

func TestRunStopsOnExitKeyword(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"Try Ramiro"}}
	loop, out := newLoop(gen, "Lisbon")

	in := strings.NewReader("best seafood restaurant\n\n   \nBYE\nignored after exit\n")
	if err := loop.Run(context.Background(), in); err != nil {
		t.Fatalf("Run err: %v", err)
	}

	if gen.calls != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", gen.calls)
	}
	if loop.State() != StateClosed {
		t.Fatalf("expected closed, got %s", loop.State())
	}
	if strings.Count(out.String(), Farewell) != 1 {
		t.Fatalf("expected a single farewell, got %q", out.String())
	}
}

func TestRunClosesOnEOF(t *testing.T) {
	gen := &fakeGenerator{}
	loop, out := newLoop(gen, "Lisbon")

	if err := loop.Run(context.Background(), strings.NewReader("hello")); err != nil {
		t.Fatalf("Run err: %v", err)
	}
	if loop.State() != StateClosed {
		t.Fatalf("expected closed, got %s", loop.State())
	}
	if gen.calls != 1 {
		t.Fatalf("expected final unterminated line to be dispatched, got %d", gen.calls)
	}
	if !strings.Contains(out.String(), Farewell) {
		t.Fatal("expected farewell on EOF")
	}
}

func TestRunClosesOnInterrupt(t *testing.T) {
	gen := &fakeGenerator{}
	loop, out := newLoop(gen, "Lisbon")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	blocking, w := io.Pipe()
	defer w.Close()

	if err := loop.Run(ctx, blocking); err != nil {
		t.Fatalf("Run err: %v", err)
	}
	if loop.State() != StateClosed {
		t.Fatalf("expected closed, got %s", loop.State())
	}
	if gen.calls != 0 {
		t.Fatal("no dispatch expected after interrupt")
	}
	if !strings.Contains(out.String(), Farewell) {
		t.Fatal("expected farewell on interrupt")
	}
}

func TestPrintBannerListsTopics(t *testing.T) {
	loop, out := newLoop(&fakeGenerator{}, "Lisbon")
	loop.PrintBanner()

	for _, want := range []string{"Welcome to Lisbon Explorer Chatbot!", "Food & Dining", "Hospitals & Healthcare", "'quit'"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("banner missing %q:\n%s", want, out.String())
		}
	}
}

func TestStateString(t *testing.T) {
	if StateAwaitingInput.String() != "awaiting_input" || StateDispatching.String() != "dispatching" || StateClosed.String() != "closed" {
		t.Fatal("unexpected state names")
	}
}
