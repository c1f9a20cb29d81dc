// Package tray provides the system tray menu for glowlens.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/glowlens/internal/analysis"
	"github.com/ayusman/glowlens/internal/session"
)

// Tray represents the system tray application.
type Tray struct {
	onAnalyze func(kind string)
	onOpen    func()
	onQuit    func()
	mu        sync.RWMutex

	// Menu items stored for later updates
	menuFace   *systray.MenuItem
	menuHand   *systray.MenuItem
	menuLast   *systray.MenuItem
	lastResult string
}

// New creates a new Tray instance.
func New() *Tray {
	return &Tray{}
}

// OnAnalyze sets the callback run when "Analyze face" or "Analyze hand" is clicked.
func (t *Tray) OnAnalyze(fn func(kind string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onAnalyze = fn
}

// OnOpen sets the callback run when the open menu item is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback run when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

func (t *Tray) onReady() {
	systray.SetTitle("Glowlens")
	systray.SetTooltip("Glowlens face and hand analysis")

	t.mu.Lock()
	t.menuFace = systray.AddMenuItem("Analyze face", "Open the camera for face analysis")
	t.menuHand = systray.AddMenuItem("Analyze hand", "Open the camera for hand analysis")
	systray.AddSeparator()

	t.menuLast = systray.AddMenuItem(lastTitle(t.lastResult), "Most recent analysis")
	t.menuLast.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open in browser...", "Open glowlens in the browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit glowlens")

	go func() {
		for {
			select {
			case <-t.menuFace.ClickedCh:
				t.handleAnalyze("face")
			case <-t.menuHand.ClickedCh:
				t.handleAnalyze("hand")
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) handleAnalyze(kind string) {
	t.mu.RLock()
	callback := t.onAnalyze
	t.mu.RUnlock()

	if callback != nil {
		callback(kind)
	}
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetLastResult updates the last result display in the menu.
func (t *Tray) SetLastResult(res *analysis.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastResult = Summary(res)
	if t.menuLast != nil {
		t.menuLast.SetTitle(lastTitle(t.lastResult))
	}
}

// LastResult returns the summary shown in the menu, or "" before any result.
func (t *Tray) LastResult() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastResult
}

// Watch mirrors result events from the sessions into the menu until the
// returned function is called.
func (t *Tray) Watch(sessions map[string]*session.Session) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup

	for _, s := range sessions {
		events, unsubscribe := s.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer unsubscribe()
			for {
				select {
				case <-done:
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					if e.Type == session.EventResult {
						t.SetLastResult(e.Result)
					}
				}
			}
		}()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

// Summary is the one-line menu text for a result.
func Summary(res *analysis.Result) string {
	if res == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s, %s", res.Kind(), res.Geometry.Shape, res.Color.Category)
}

func lastTitle(summary string) string {
	if summary == "" {
		return "Last: none"
	}
	return "Last: " + summary
}

// Quit ends Run. It is safe to call from any goroutine.
func (t *Tray) Quit() {
	systray.Quit()
}
