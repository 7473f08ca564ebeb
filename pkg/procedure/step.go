package procedure

import "fmt"

// Step is one stage of the alignment test workflow.
type Step int

const (
	StepPreparation Step = iota + 1
	StepCoarseAlignment
	StepReferenceSetup
	StepMeasurement
	StepReview
	StepComplete
)

const (
	FirstStep = StepPreparation
	LastStep  = StepComplete
)

var stepNames = map[Step]string{
	StepPreparation:     "Preparation",
	StepCoarseAlignment: "CoarseAlignment",
	StepReferenceSetup:  "ReferenceSetup",
	StepMeasurement:     "Measurement",
	StepReview:          "Review",
	StepComplete:        "Complete",
}

func (s Step) String() string {
	if n, ok := stepNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Step(%d)", int(s))
}

func (s Step) Valid() bool {
	return s >= FirstStep && s <= LastStep
}
