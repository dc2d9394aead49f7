package domain_test

import (
	"testing"

	"github.com/northcloud/vulcan-scheduler/internal/domain"
)

func TestMachineHasCapability(t *testing.T) {
	t.Parallel()

	m := domain.Machine{Status: domain.MachineAvailable, Capabilities: []string{"OP-10", "OP-20"}}
	if !m.HasCapability("OP-10") {
		t.Error("expected machine to have capability OP-10")
	}
	if m.HasCapability("OP-30") {
		t.Error("expected machine not to have capability OP-30")
	}
	if !m.IsAvailable() {
		t.Error("expected AVAILABLE machine to be available")
	}
}

func TestOperatorBestMatchPicksHighestScoringSkill(t *testing.T) {
	t.Parallel()

	weak, _ := domain.BasicSkill("welding")
	strong, _ := domain.AdvancedSkill("welding", 10)

	op := domain.Operator{Status: domain.OperatorAvailable, Skills: []domain.Skill{weak, strong}}
	req, _ := domain.BasicRequirement("welding")

	best, score, ok := op.BestMatch(req)
	if !ok {
		t.Fatal("expected a satisfying skill to be found")
	}
	if best.Level() != 3 {
		t.Errorf("best.Level() = %d, want 3 (the advanced skill should score higher)", best.Level())
	}
	if score <= 0.5 {
		t.Errorf("score = %v, want > 0.5", score)
	}
}

func TestOperatorSatisfiesRequirementFalseWhenNoSkillMatches(t *testing.T) {
	t.Parallel()

	skill, _ := domain.BasicSkill("machining")
	op := domain.Operator{Status: domain.OperatorAvailable, Skills: []domain.Skill{skill}}
	req, _ := domain.AdvancedRequirement("welding", 5)

	if op.SatisfiesRequirement(req) {
		t.Error("expected operator without a matching skill type to not satisfy requirement")
	}
}
