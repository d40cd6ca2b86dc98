package wizard

import "fmt"

// Step is one page of the pairing wizard
type Step int

const (
	StepEnterSN Step = iota + 1
	StepConfirmPinCode
	StepDevicesSetting
	StepFinish
)

// String returns the step name used in logs and the UI
func (s Step) String() string {
	switch s {
	case StepEnterSN:
		return "enter-sn"
	case StepConfirmPinCode:
		return "confirm-pincode"
	case StepDevicesSetting:
		return "devices-setting"
	case StepFinish:
		return "finish"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

// Title returns a short human-readable heading for the step
func (s Step) Title() string {
	switch s {
	case StepEnterSN:
		return "Enter serial numbers"
	case StepConfirmPinCode:
		return "Confirm pin codes"
	case StepDevicesSetting:
		return "Device settings"
	case StepFinish:
		return "Finished"
	default:
		return s.String()
	}
}

// State is the wizard position. Active is the step being shown; Next is
// the furthest step the batch currently qualifies for. Next >= Active.
type State struct {
	Active Step
	Next   Step
}

// Initial returns the state of a fresh wizard
func Initial() State {
	return State{Active: StepEnterSN, Next: StepEnterSN}
}

// String renders the state as "active->next"
func (s State) String() string {
	return s.Active.String() + "->" + s.Next.String()
}
