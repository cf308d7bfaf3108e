package provider

import "context"

// StubProvider is the "gemini_stub" deterministic provider used by
// tests and CI so the validation pipeline and control loop can run
// without a real AI agent subprocess.
type StubProvider struct {
	// Responses is consumed in order, one per Execute call; the last
	// entry repeats once exhausted.
	Responses []Result
	calls     int
}

// NewStubProvider returns a StubProvider that replies with responses in order.
func NewStubProvider(responses ...Result) *StubProvider {
	return &StubProvider{Responses: responses}
}

func (p *StubProvider) Name() string {
	return "gemini_stub"
}

func (p *StubProvider) Execute(ctx context.Context, req Request) (*Result, error) {
	if len(p.Responses) == 0 {
		return &Result{Stdout: "", RawOutput: "", ExitCode: 0}, nil
	}
	idx := p.calls
	if idx >= len(p.Responses) {
		idx = len(p.Responses) - 1
	}
	p.calls++
	result := p.Responses[idx]
	return &result, nil
}

// Calls reports how many times Execute has been invoked.
func (p *StubProvider) Calls() int {
	return p.calls
}
