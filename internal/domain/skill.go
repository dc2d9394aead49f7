package domain

import (
	"fmt"
	"strings"
)

// Skill is an immutable value object describing an operator's capability in
// one area: a type, a level in [1,3], years of experience, and certifications
// (spec.md §3). Upgrades return a new value rather than mutating in place.
type Skill struct {
	skillType        string
	level            int
	yearsExperience  int
	certifications   []string
}

// NewSkill constructs a Skill, validating level and years_experience.
func NewSkill(skillType string, level int, yearsExperience int, certifications []string) (Skill, error) {
	skillType = strings.TrimSpace(skillType)
	if skillType == "" {
		return Skill{}, fmt.Errorf("domain: skill type cannot be empty")
	}
	if level < 1 || level > 3 {
		return Skill{}, fmt.Errorf("domain: skill level must be between 1 and 3, got %d", level)
	}
	if yearsExperience < 0 {
		return Skill{}, fmt.Errorf("domain: years of experience cannot be negative, got %d", yearsExperience)
	}

	return Skill{
		skillType:       strings.ToLower(skillType),
		level:           level,
		yearsExperience: yearsExperience,
		certifications:  append([]string(nil), certifications...),
	}, nil
}

// BasicSkill constructs a level-1 Skill.
func BasicSkill(skillType string) (Skill, error) {
	return NewSkill(skillType, 1, 0, nil)
}

// IntermediateSkill constructs a level-2 Skill with the given experience.
func IntermediateSkill(skillType string, yearsExperience int) (Skill, error) {
	return NewSkill(skillType, 2, yearsExperience, nil)
}

// AdvancedSkill constructs a level-3 Skill with the given experience.
func AdvancedSkill(skillType string, yearsExperience int) (Skill, error) {
	return NewSkill(skillType, 3, yearsExperience, nil)
}

func (s Skill) SkillType() string       { return s.skillType }
func (s Skill) Level() int              { return s.level }
func (s Skill) YearsExperience() int    { return s.yearsExperience }
func (s Skill) Certifications() []string {
	return append([]string(nil), s.certifications...)
}

// HasCertification reports whether name is among s's certifications.
func (s Skill) HasCertification(name string) bool {
	for _, c := range s.certifications {
		if c == name {
			return true
		}
	}
	return false
}

// MeetsRequirement reports whether s.level is at least requiredLevel.
func (s Skill) MeetsRequirement(requiredLevel int) bool {
	return s.level >= requiredLevel
}

// AddCertification returns a new Skill with name added, if not already present.
func (s Skill) AddCertification(name string) Skill {
	if s.HasCertification(name) {
		return s
	}
	next := s
	next.certifications = append(append([]string(nil), s.certifications...), name)
	return next
}

// UpgradeToLevel returns a new Skill at newLevel, which must exceed the
// current level, with additionalExperience years added.
func (s Skill) UpgradeToLevel(newLevel int, additionalExperience int) (Skill, error) {
	if newLevel <= s.level {
		return Skill{}, fmt.Errorf("domain: new level %d must be higher than current level %d", newLevel, s.level)
	}
	return NewSkill(s.skillType, newLevel, s.yearsExperience+additionalExperience, s.certifications)
}

// Effectiveness combines level and experience into a single score in [0,1]:
// level/3 plus up to 0.2 from experience plus up to 0.15 from certifications
// (spec.md §3).
func (s Skill) Effectiveness() float64 {
	base := float64(s.level) / 3.0
	experienceBonus := min(0.2, float64(s.yearsExperience)*0.02)
	certBonus := min(0.15, float64(len(s.certifications))*0.05)
	return min(1.0, base+experienceBonus+certBonus)
}

func (s Skill) String() string {
	return fmt.Sprintf("%s (level %d)", s.skillType, s.level)
}

// SkillRequirement is an immutable value object describing the minimum
// (and optionally preferred) skill needed for a task (spec.md §3).
type SkillRequirement struct {
	skillType                 string
	minimumLevel               int
	preferredLevel             *int
	yearsExperienceRequired    int
	requiredCertifications     []string
}

// NewSkillRequirement constructs a SkillRequirement, validating levels and
// experience. preferredLevel may be nil.
func NewSkillRequirement(skillType string, minimumLevel int, preferredLevel *int, yearsExperienceRequired int, requiredCertifications []string) (SkillRequirement, error) {
	skillType = strings.TrimSpace(skillType)
	if skillType == "" {
		return SkillRequirement{}, fmt.Errorf("domain: skill type cannot be empty")
	}
	if minimumLevel < 1 || minimumLevel > 3 {
		return SkillRequirement{}, fmt.Errorf("domain: minimum skill level must be between 1 and 3, got %d", minimumLevel)
	}
	if preferredLevel != nil {
		if *preferredLevel < 1 || *preferredLevel > 3 {
			return SkillRequirement{}, fmt.Errorf("domain: preferred skill level must be between 1 and 3, got %d", *preferredLevel)
		}
		if *preferredLevel < minimumLevel {
			return SkillRequirement{}, fmt.Errorf("domain: preferred level cannot be lower than minimum level")
		}
	}
	if yearsExperienceRequired < 0 {
		return SkillRequirement{}, fmt.Errorf("domain: years of experience required cannot be negative")
	}

	return SkillRequirement{
		skillType:               strings.ToLower(skillType),
		minimumLevel:            minimumLevel,
		preferredLevel:          preferredLevel,
		yearsExperienceRequired: yearsExperienceRequired,
		requiredCertifications:  append([]string(nil), requiredCertifications...),
	}, nil
}

// BasicRequirement constructs a minimum-level-1 requirement.
func BasicRequirement(skillType string) (SkillRequirement, error) {
	return NewSkillRequirement(skillType, 1, nil, 0, nil)
}

// IntermediateRequirement constructs a minimum-level-2 requirement.
func IntermediateRequirement(skillType string, yearsExperience int) (SkillRequirement, error) {
	return NewSkillRequirement(skillType, 2, nil, yearsExperience, nil)
}

// AdvancedRequirement constructs a minimum-level-3 requirement.
func AdvancedRequirement(skillType string, yearsExperience int) (SkillRequirement, error) {
	return NewSkillRequirement(skillType, 3, nil, yearsExperience, nil)
}

func (r SkillRequirement) SkillType() string    { return r.skillType }
func (r SkillRequirement) MinimumLevel() int    { return r.minimumLevel }
func (r SkillRequirement) PreferredLevel() *int { return r.preferredLevel }
func (r SkillRequirement) YearsExperienceRequired() int { return r.yearsExperienceRequired }
func (r SkillRequirement) RequiredCertifications() []string {
	return append([]string(nil), r.requiredCertifications...)
}

// IsSatisfiedBy reports whether skill satisfies this requirement: matching
// type, level >= minimum, experience >= required, all certifications present.
func (r SkillRequirement) IsSatisfiedBy(skill Skill) bool {
	if skill.skillType != r.skillType {
		return false
	}
	if skill.level < r.minimumLevel {
		return false
	}
	if skill.yearsExperience < r.yearsExperienceRequired {
		return false
	}
	for _, cert := range r.requiredCertifications {
		if !skill.HasCertification(cert) {
			return false
		}
	}
	return true
}

// MatchScore rates how well skill matches this requirement in [0,1]: 0 if
// unsatisfied, otherwise a base of 0.5 plus bonuses for exceeding the
// minimum level, exceeding required experience, and extra certifications.
func (r SkillRequirement) MatchScore(skill Skill) float64 {
	if !r.IsSatisfiedBy(skill) {
		return 0
	}

	score := 0.5

	if r.preferredLevel != nil && *r.preferredLevel > r.minimumLevel {
		levelBonus := min(0.3, float64(skill.level-r.minimumLevel)/float64(*r.preferredLevel-r.minimumLevel)*0.3)
		score += levelBonus
	} else {
		score += min(0.3, float64(skill.level-r.minimumLevel)*0.15)
	}

	if skill.yearsExperience > r.yearsExperienceRequired {
		score += min(0.15, float64(skill.yearsExperience-r.yearsExperienceRequired)*0.02)
	}

	extraCerts := len(skill.certifications) - len(r.requiredCertifications)
	score += min(0.05, float64(extraCerts)*0.01)

	return min(1.0, score)
}

func (r SkillRequirement) String() string {
	return fmt.Sprintf("%s (min level %d)", r.skillType, r.minimumLevel)
}
