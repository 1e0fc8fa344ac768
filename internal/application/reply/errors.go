package reply

import "fmt"

// Step names the stage of a scan cycle an error happened in.
type Step string

const (
	StepList    Step = "list"
	StepGet     Step = "get"
	StepContact Step = "contact"
	StepSend    Step = "send"
	StepLabel   Step = "label"
	StepLedger  Step = "ledger"
)

// StepError wraps a provider or storage failure with the step and message it concerns.
type StepError struct {
	Step      Step
	MessageID string
	Err       error
}

func (e *StepError) Error() string {
	if e.MessageID == "" {
		return fmt.Sprintf("%s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Step, e.MessageID, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
