package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/stemsi/exstem-proctor/internal/session"
)

// ─── Messages (session → program) ───────────────────────────────────

type questionMsg session.QuestionView
type paletteMsg session.PaletteView
type timerMsg session.TimerView
type violationsMsg session.ViolationView
type controlMsg session.SubmitControl
type showOverlayMsg session.Overlay
type hideOverlayMsg session.OverlayKind
type finalizeMsg session.Outcome

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// Bridge is the session's Renderer. It turns every render call into a
// program message. Calls never block the session loop: messages are queued
// and forwarded in order by a single goroutine.
type Bridge struct {
	mu     sync.Mutex
	queue  []tea.Msg
	wake   chan struct{}
	done   chan struct{}
	sender Sender
}

// NewBridge starts forwarding to sender. Close stops it.
func NewBridge(sender Sender) *Bridge {
	b := &Bridge{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		sender: sender,
	}
	go b.forward()
	return b
}

func (b *Bridge) RenderQuestion(v session.QuestionView) { b.push(questionMsg(v)) }
func (b *Bridge) RenderPalette(v session.PaletteView) { b.push(paletteMsg(v)) }
func (b *Bridge) RenderTimer(v session.TimerView) { b.push(timerMsg(v)) }
func (b *Bridge) RenderViolations(v session.ViolationView) { b.push(violationsMsg(v)) }
func (b *Bridge) RenderSubmitControl(v session.SubmitControl) { b.push(controlMsg(v)) }
func (b *Bridge) ShowOverlay(o session.Overlay) { b.push(showOverlayMsg(o)) }
func (b *Bridge) HideOverlay(k session.OverlayKind) { b.push(hideOverlayMsg(k)) }
func (b *Bridge) Finalize(o session.Outcome) { b.push(finalizeMsg(o)) }

// Close stops the forwarder; queued messages are dropped.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.done:
	default:
		close(b.done)
	}
}

func (b *Bridge) push(msg tea.Msg) {
	b.mu.Lock()
	b.queue = append(b.queue, msg)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bridge) forward() {
	for {
		select {
		case <-b.done:
			return
		case <-b.wake:
		}

		b.mu.Lock()
		batch := b.queue
		b.queue = nil
		b.mu.Unlock()

		for _, msg := range batch {
			select {
			case <-b.done:
				return
			default:
			}
			b.sender.Send(msg)
		}
	}
}
