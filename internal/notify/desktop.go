package notify

import (
	"context"

	"github.com/gen2brain/beeep"

	"dictation/internal/dialog"
	"dictation/internal/dictation"
)

const appName = "Dictation"

// Desktop shows a system notification for the dialogs that matter when the
// user is not looking at the assistant: start, saved and save failures.
type Desktop struct {
	dictation.NopHost

	notify func(title, message string) error
}

var _ dictation.Host = (*Desktop)(nil)

func NewDesktop() *Desktop {
	return &Desktop{notify: func(title, message string) error {
		return beeep.Notify(title, message, "")
	}}
}

var desktopDialogs = map[string]bool{
	dictation.DialogStart:      true,
	dictation.DialogSaved:      true,
	dictation.DialogSaveFailed: true,
}

func (d *Desktop) Speak(_ context.Context, _, id string, data map[string]string) error {
	if !desktopDialogs[id] {
		return nil
	}
	msg := dialog.Render(id, data)
	if len(msg) > 100 {
		msg = msg[:100] + "..."
	}
	return d.notify(appName, msg)
}
