package core

import (
	"testing"
)

func TestScenarioResult_ComputeSummary(t *testing.T) {
	r := &ScenarioResult{
		Steps: []StepResult{
			{Index: 0, Status: StatusPassed},
			{Index: 1, Status: StatusPassed},
			{Index: 2, Status: StatusFailed},
			{Index: 3, Status: StatusSkipped},
			{Index: 4, Status: StatusErrored},
		},
		Conditions: []ConditionResult{
			{Name: "monthlyPayment", Met: true},
			{Name: "totalCost", Met: false, TimedOut: true},
		},
	}

	r.ComputeSummary()

	if r.TotalSteps != 5 {
		t.Errorf("TotalSteps = %d, want 5", r.TotalSteps)
	}
	if r.PassedSteps != 2 {
		t.Errorf("PassedSteps = %d, want 2", r.PassedSteps)
	}
	if r.FailedSteps != 2 { // Failed + Errored
		t.Errorf("FailedSteps = %d, want 2", r.FailedSteps)
	}
	if r.UnmetCount != 1 {
		t.Errorf("UnmetCount = %d, want 1", r.UnmetCount)
	}
}

func TestScenarioResult_AggregateStatus(t *testing.T) {
	tests := []struct {
		name       string
		steps      []StepResult
		conditions []ConditionResult
		want       StepStatus
	}{
		{
			name:       "all passed",
			steps:      []StepResult{{Status: StatusPassed}, {Status: StatusPassed}},
			conditions: []ConditionResult{{Met: true}},
			want:       StatusPassed,
		},
		{
			name:  "errored step wins",
			steps: []StepResult{{Status: StatusFailed}, {Status: StatusErrored}},
			want:  StatusErrored,
		},
		{
			name:       "unmet condition fails",
			steps:      []StepResult{{Status: StatusPassed}},
			conditions: []ConditionResult{{Met: true}, {Met: false, TimedOut: true}},
			want:       StatusFailed,
		},
		{
			name:       "swallowed timeout passes",
			steps:      []StepResult{{Status: StatusPassed}},
			conditions: []ConditionResult{{Met: false, TimedOut: true, Swallowed: true}},
			want:       StatusPassed,
		},
		{
			name: "empty scenario passes",
			want: StatusPassed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &ScenarioResult{Steps: tt.steps, Conditions: tt.conditions}
			if got := r.AggregateStatus(); got != tt.want {
				t.Errorf("AggregateStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPhaseTimings_Total(t *testing.T) {
	p := PhaseTimings{Allocate: 5000, Locate: 100, Populate: 200, Assert: 300}
	if got := p.Total(); got != 600 {
		t.Errorf("Total() = %d, want 600", got)
	}
}

func TestSuiteResult_ComputeSummary(t *testing.T) {
	s := &SuiteResult{
		Scenarios: []ScenarioResult{
			{Status: StatusPassed},
			{Status: StatusFailed},
			{Status: StatusErrored},
			{Status: StatusSkipped},
			{Status: StatusPassed},
		},
	}
	s.ComputeSummary()

	if s.Total != 5 || s.Passed != 2 || s.Failed != 1 || s.Errored != 1 || s.Skipped != 1 {
		t.Errorf("summary = %+v", s)
	}
}

func TestSuiteResult_Success(t *testing.T) {
	empty := &SuiteResult{}
	if empty.Success() {
		t.Error("empty suite should not be successful")
	}

	ok := &SuiteResult{Scenarios: []ScenarioResult{{Status: StatusPassed}, {Status: StatusPassed}}}
	if !ok.Success() {
		t.Error("all-passed suite should be successful")
	}

	bad := &SuiteResult{Scenarios: []ScenarioResult{{Status: StatusPassed}, {Status: StatusErrored}}}
	if bad.Success() {
		t.Error("suite with errored scenario should not be successful")
	}
}
