package planner

import "sync"

// mockLogger is a mock implementation of logger.Logger for testing
type mockLogger struct {
	mu sync.Mutex

	phases      []string
	copyCalls   []string
	deleteCalls []string
	errorCalls  []errorCall
	debugCalls  []string
}

type errorCall struct {
	operation string
	path      string
	err       error
}

func (m *mockLogger) PhaseStart(phase string, totalItems int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases = append(m.phases, "start "+phase)
}

func (m *mockLogger) PhaseComplete(phase string, processedItems int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases = append(m.phases, "complete "+phase)
}

func (m *mockLogger) Copy(src, dest string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.copyCalls = append(m.copyCalls, src)
}

func (m *mockLogger) Delete(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls = append(m.deleteCalls, path)
}

func (m *mockLogger) Error(operation, path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCalls = append(m.errorCalls, errorCall{operation, path, err})
}

func (m *mockLogger) Debug(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugCalls = append(m.debugCalls, message)
}
