package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/batchpair/internal/wizard"
)

// Messages delivered from the controller
type snapshotMsg struct{ snap wizard.Snapshot }

type countdownMsg struct {
	key     int
	seconds int
}

type noticeMsg struct{ notice wizard.Notice }

// Bridge is a wizard.Observer that forwards controller events to a Bubble
// Tea program. Events are queued and delivered in order by one pump
// goroutine, so the controller never blocks on the UI event loop.
type Bridge struct {
	mu      sync.Mutex
	queue   []tea.Msg
	send    func(tea.Msg)
	wake    chan struct{}
	closed  chan struct{}
	stopped chan struct{}
	once    sync.Once
}

var _ wizard.Observer = (*Bridge)(nil)

// NewBridge creates a bridge. Events observed before Attach are kept.
func NewBridge() *Bridge {
	return &Bridge{
		wake:    make(chan struct{}, 1),
		closed:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Attach starts delivering events to send, typically tea.Program.Send
func (b *Bridge) Attach(send func(tea.Msg)) {
	b.mu.Lock()
	started := b.send != nil
	b.send = send
	b.mu.Unlock()
	if !started {
		go b.pump()
	}
}

// Close stops delivery and waits for the pump to exit. Queued events
// are dropped.
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.closed) })
	b.mu.Lock()
	started := b.send != nil
	b.mu.Unlock()
	if started {
		<-b.stopped
	}
}

// StateChanged implements wizard.Observer
func (b *Bridge) StateChanged(snap wizard.Snapshot) { b.push(snapshotMsg{snap: snap}) }

// CountdownTick implements wizard.Observer
func (b *Bridge) CountdownTick(key, seconds int) {
	b.push(countdownMsg{key: key, seconds: seconds})
}

// Notify implements wizard.Observer
func (b *Bridge) Notify(n wizard.Notice) { b.push(noticeMsg{notice: n}) }

func (b *Bridge) push(msg tea.Msg) {
	select {
	case <-b.closed:
		return
	default:
	}
	b.mu.Lock()
	b.queue = append(b.queue, msg)
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bridge) pump() {
	defer close(b.stopped)
	for {
		select {
		case <-b.closed:
			return
		case <-b.wake:
		}

		b.mu.Lock()
		pending, send := b.queue, b.send
		b.queue = nil
		b.mu.Unlock()

		for _, msg := range pending {
			select {
			case <-b.closed:
				return
			default:
			}
			send(msg)
		}
	}
}
