// ABOUTME: In-memory Notifier recording notices for assertions in tests
// ABOUTME: Kept in the package (not a _test file) so other packages' tests can use it

package notify

import "sync"

// Notice is one recorded notification.
type Notice struct {
	Kind    string // "success", "error", "info"
	Message string
}

// Recorder is a Notifier that stores every notice it receives.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Success(message string) { r.record("success", message) }
func (r *Recorder) Error(message string)   { r.record("error", message) }
func (r *Recorder) Info(message string)    { r.record("info", message) }

func (r *Recorder) record(kind, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, Notice{Kind: kind, Message: message})
}

// Notices returns a copy of everything recorded so far.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// CountKind returns how many notices of the given kind were recorded.
func (r *Recorder) CountKind(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, notice := range r.notices {
		if notice.Kind == kind {
			n++
		}
	}
	return n
}
