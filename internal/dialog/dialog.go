// Package dialog asks the user how to proceed when the model cannot be
// provisioned.
package dialog

import (
	"errors"
	"fmt"

	"github.com/ncruces/zenity"
)

// Choice is the user's answer to the retry prompt.
type Choice int

const (
	Dismiss Choice = iota
	Retry
	Disable
)

func (c Choice) String() string {
	switch c {
	case Retry:
		return "retry"
	case Disable:
		return "disable"
	default:
		return "dismiss"
	}
}

var question = zenity.Question

// AskRetry shows a Retry / Disable prompt for a provisioning failure.
// Closing the dialog returns Dismiss.
func AskRetry(reason string) (Choice, error) {
	err := question(
		fmt.Sprintf("The speech model could not be downloaded:\n\n%s\n\nCheck your connection and try again, or disable voice commands.", reason),
		zenity.Title("SayCheese"),
		zenity.OKLabel("Retry"),
		zenity.CancelLabel("Disable"),
		zenity.ExtraButton("Later"),
		zenity.WarningIcon,
	)
	switch {
	case err == nil:
		return Retry, nil
	case errors.Is(err, zenity.ErrCanceled):
		return Disable, nil
	case errors.Is(err, zenity.ErrExtraButton):
		return Dismiss, nil
	default:
		return Dismiss, fmt.Errorf("dialog: %w", err)
	}
}
