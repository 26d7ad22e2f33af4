package orbit

import (
	"context"
	"log"

	"github.com/go-rod/rod/lib/proto"
)

// Forge adopts popup windows the embedded site opens. Popups become tracked
// bubbles until the site closes them or the core shuts down; beyond the
// popup cap new windows are closed immediately.
type Forge struct {
	core   *Core
	logger *log.Logger
}

// NewForge creates a popup forge over core.
func NewForge(core *Core, logger *log.Logger) *Forge {
	return &Forge{core: core, logger: logger}
}

// Watch subscribes to browser target events until ctx is cancelled.
func (f *Forge) Watch(ctx context.Context) {
	browser := f.core.Browser()
	if browser == nil {
		f.logger.Printf("orbit: forge started before browser, skipping popup tracking")
		return
	}

	wait := browser.Context(ctx).EachEvent(
		func(ev *proto.TargetTargetCreated) {
			f.onTargetCreated(ev)
		},
		func(ev *proto.TargetTargetDestroyed) {
			if bubble := f.core.release(string(ev.TargetID)); bubble != nil {
				f.logger.Printf("orbit: bubble %s closed (%s)", bubble.ID, bubble.Kind)
			}
		},
	)
	go wait()
}

// onTargetCreated adopts window.open targets as popup bubbles.
func (f *Forge) onTargetCreated(ev *proto.TargetTargetCreated) {
	info := ev.TargetInfo
	if info.Type != "page" || info.OpenerID == "" {
		return // not a popup
	}

	f.core.mu.RLock()
	_, known := f.core.bubbles[string(info.TargetID)]
	f.core.mu.RUnlock()
	if known {
		return
	}

	browser := f.core.Browser()
	if browser == nil {
		return
	}

	page, err := browser.PageFromTarget(info.TargetID)
	if err != nil {
		f.logger.Printf("orbit: attach popup %s: %v", info.TargetID, err)
		return
	}

	if f.core.popupCount() >= f.core.cfg.maxPopups() {
		f.logger.Printf("orbit: popup cap reached, closing %s", info.URL)
		_ = page.Close()
		return
	}

	bubble := f.core.adopt(page, BubblePopup, info.URL)
	f.logger.Printf("orbit: adopted popup bubble %s at %s", bubble.ID, info.URL)
}
