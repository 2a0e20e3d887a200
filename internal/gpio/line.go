package gpio

// Handle is an open line request that can be watched for readiness.
type Handle interface {
	// Fd returns the descriptor that becomes readable when an event is queued.
	Fd() int
	// ReadEvent decodes exactly one queued event without blocking.
	ReadEvent() (Event, error)
	// Close releases the line request.
	Close() error
}

// Line is a monitored input: its label, its behavior after an event and its handle.
type Line struct {
	// Name is the label used in every log message about the line.
	Name string
	// Target is the systemd unit started on every event. Empty means no action.
	Target string
	// ContinueAfterEvent keeps the line armed after an event when true.
	ContinueAfterEvent bool

	// handle is the open kernel line request.
	handle Handle
}

// NewLine wraps an open handle.
func NewLine(name, target string, continueAfterEvent bool, handle Handle) *Line {
	return &Line{
		Name:               name,
		Target:             target,
		ContinueAfterEvent: continueAfterEvent,
		handle:             handle,
	}
}

// Fd returns the readiness-watchable descriptor of the line.
func (l *Line) Fd() int {
	return l.handle.Fd()
}

// ReadEvent decodes the next queued edge event.
func (l *Line) ReadEvent() (Event, error) {
	return l.handle.ReadEvent()
}

// Close releases the line request.
func (l *Line) Close() error {
	return l.handle.Close()
}
