package generate

import "context"

// Mock is a scriptable generator for tests. Responses are returned in order;
// when they run out the last one repeats.
type Mock struct {
	Responses []string
	Err       error
	Calls     []string
	calls     int
}

// Generate returns the next scripted response.
func (m *Mock) Generate(ctx context.Context, system, prompt string) (string, error) {
	m.Calls = append(m.Calls, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", nil
	}
	idx := m.calls
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	m.calls++
	return m.Responses[idx], nil
}

// Model returns the mock model name.
func (m *Mock) Model() string {
	return "mock-generator"
}

var _ Generator = (*Mock)(nil)
