package tui

import (
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/batchpair/internal/wizard"
)

type collector struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (c *collector) send(msg tea.Msg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestBridge_DeliversInOrder(t *testing.T) {
	b := NewBridge()
	var c collector

	// Events observed before the program starts are kept
	b.StateChanged(wizard.Snapshot{Revision: 1})
	b.CountdownTick(3, 299)

	b.Attach(c.send)
	b.Notify(wizard.Notice{Message: "hello"})
	b.StateChanged(wizard.Snapshot{Revision: 2})

	require.Eventually(t, func() bool { return c.count() == 4 }, time.Second, 5*time.Millisecond)
	b.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, snapshotMsg{snap: wizard.Snapshot{Revision: 1}}, c.msgs[0])
	assert.Equal(t, countdownMsg{key: 3, seconds: 299}, c.msgs[1])
	assert.Equal(t, noticeMsg{notice: wizard.Notice{Message: "hello"}}, c.msgs[2])
	assert.Equal(t, snapshotMsg{snap: wizard.Snapshot{Revision: 2}}, c.msgs[3])
}

func TestBridge_NeverBlocksTheCaller(t *testing.T) {
	b := NewBridge()
	release := make(chan struct{})
	var c collector
	b.Attach(func(msg tea.Msg) {
		<-release
		c.send(msg)
	})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.CountdownTick(1, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("observer calls blocked on a stalled program")
	}

	close(release)
	require.Eventually(t, func() bool { return c.count() == 100 }, time.Second, 5*time.Millisecond)
	b.Close()
}

func TestBridge_CloseDropsLaterEvents(t *testing.T) {
	b := NewBridge()
	var c collector
	b.Attach(c.send)
	b.Close()
	b.Close()

	b.Notify(wizard.Notice{Message: "late"})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, c.count())
}

func TestBridge_CloseWithoutAttach(t *testing.T) {
	b := NewBridge()
	b.StateChanged(wizard.Snapshot{})
	b.Close()
}
