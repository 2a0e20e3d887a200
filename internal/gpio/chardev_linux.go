//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/warthog618/go-gpiocdev/uapi"
	"golang.org/x/sys/unix"
)

// DefaultConsumer is the label the kernel shows as the owner of requested lines.
const DefaultConsumer = "gpio-monitor"

// EdgeDetection selects which transitions the kernel reports.
type EdgeDetection int

const (
	// DetectBoth reports rising and falling edges.
	DetectBoth EdgeDetection = iota
	// DetectRising reports rising edges only.
	DetectRising
	// DetectFalling reports falling edges only.
	DetectFalling
)

// RequestOptions describes how a line is requested.
type RequestOptions struct {
	// Chip is the character device path, e.g. /dev/gpiochip0.
	Chip string
	// Offset is the line offset on the chip.
	Offset int
	// Consumer is the owner label. Defaults to DefaultConsumer.
	Consumer string
	// Edge selects the reported transitions.
	Edge EdgeDetection
	// ActiveLow inverts the line polarity.
	ActiveLow bool
}

var (
	// ErrRequestLine is returned when the kernel refuses the line request.
	ErrRequestLine = errors.New("request line events")
	// errNoEvent is returned when the descriptor has no queued event.
	errNoEvent = errors.New("no event queued")
)

// ChardevHandle is a uAPI v2 line request for a single line.
type ChardevHandle struct {
	// fd is the non-blocking line request descriptor.
	fd int
}

// Request asks the kernel for edge events on one line and returns the open handle.
func Request(opts RequestOptions) (*ChardevHandle, error) {
	chip, err := os.OpenFile(filepath.Clean(opts.Chip), os.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Chip, err)
	}

	// The line request outlives the chip descriptor.
	defer func() {
		_ = chip.Close()
	}()

	consumer := opts.Consumer
	if consumer == "" {
		consumer = DefaultConsumer
	}

	var request uapi.LineRequest

	request.Offsets[0] = uint32(opts.Offset) //nolint:gosec // Offsets are validated non-negative.
	request.Lines = 1
	request.Config.Flags = lineFlags(opts)
	copy(request.Consumer[:len(request.Consumer)-1], consumer)

	if err = uapi.GetLine(chip.Fd(), &request); err != nil {
		return nil, fmt.Errorf("%w: %s offset %d: %w", ErrRequestLine, opts.Chip, opts.Offset, err)
	}

	fd := int(request.Fd)
	if err = unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)

		return nil, fmt.Errorf("set non-blocking: %w", err)
	}

	return &ChardevHandle{fd: fd}, nil
}

// lineFlags converts request options into uAPI v2 line flags.
func lineFlags(opts RequestOptions) uapi.LineFlagV2 {
	flags := uapi.LineFlagV2Input

	switch opts.Edge {
	case DetectRising:
		flags |= uapi.LineFlagV2EdgeRising
	case DetectFalling:
		flags |= uapi.LineFlagV2EdgeFalling
	default:
		flags |= uapi.LineFlagV2EdgeRising | uapi.LineFlagV2EdgeFalling
	}

	if opts.ActiveLow {
		flags |= uapi.LineFlagV2ActiveLow
	}

	return flags
}

// Fd returns the line request descriptor.
func (h *ChardevHandle) Fd() int {
	return h.fd
}

// ReadEvent decodes one queued edge event.
func (h *ChardevHandle) ReadEvent() (Event, error) {
	raw, err := uapi.ReadLineEvent(uintptr(h.fd)) //nolint:gosec // fd is a valid descriptor.
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return Event{}, errNoEvent
		}

		return Event{}, fmt.Errorf("read line event: %w", err)
	}

	return decodeEvent(raw)
}

// Close releases the line request.
func (h *ChardevHandle) Close() error {
	return unix.Close(h.fd)
}

// decodeEvent maps a kernel event onto Event.
func decodeEvent(raw uapi.LineEvent) (Event, error) {
	event := Event{
		Timestamp: time.Duration(raw.Timestamp), //nolint:gosec // Monotonic nanoseconds fit in int64.
		Seqno:     raw.LineSeqno,
	}

	switch raw.ID {
	case uapi.LineEventRisingEdge:
		event.Edge = EdgeRising
	case uapi.LineEventFallingEdge:
		event.Edge = EdgeFalling
	default:
		return Event{}, fmt.Errorf("%w: id %d", ErrUnknownEdge, raw.ID)
	}

	return event, nil
}
