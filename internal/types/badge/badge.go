package badge

import (
	"time"

	"github.com/google/uuid"

	"fitTribeAPI/internal/apperr"
)

type RuleType string

const (
	RuleUserStat            RuleType = "user_stat"
	RuleChallengeCompletion RuleType = "challenge_completion"
	RuleTrainingCount       RuleType = "training_count"
	RuleCustom              RuleType = "custom"
)

type Operator string

const (
	OpEquals      Operator = "equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
	OpBetween     Operator = "between"
)

// Rule is one condition of a badge. All rules of a badge must hold for the
// badge to be awarded.
type Rule struct {
	Type     RuleType `json:"type"`
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    Value    `json:"value"`
	Value2   *Value   `json:"value2,omitempty"`
}

func (r *Rule) Validate() error {
	switch r.Type {
	case RuleUserStat, RuleChallengeCompletion, RuleTrainingCount, RuleCustom:
	default:
		return apperr.Validation("unknown rule type %q", r.Type)
	}
	if r.Field == "" {
		return apperr.Validation("rule field is required")
	}
	switch r.Operator {
	case OpEquals, OpGreaterThan, OpLessThan, OpContains:
		if r.Value2 != nil {
			return apperr.Validation("value2 is only valid with the between operator")
		}
	case OpBetween:
		if r.Value2 == nil {
			return apperr.Validation("between requires value2")
		}
	default:
		return apperr.Validation("unknown operator %q", r.Operator)
	}
	if r.Value.Kind == KindAbsent {
		return apperr.Validation("rule value is required")
	}
	return nil
}

type Badge struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	Rules       []Rule    `json:"rules"`
	Points      int       `json:"points"`
	IsActive    bool      `json:"isActive"`
	IsAutomatic bool      `json:"isAutomatic"`
	EarnedCount int       `json:"earnedCount"`
	CreatedBy   uuid.UUID `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// AwardedBadge is a badge plus when the user earned it.
type AwardedBadge struct {
	Badge
	AwardedAt time.Time `json:"awardedAt"`
}

type CreateBadgeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Rules       []Rule `json:"rules"`
	Points      int    `json:"points"`
	IsActive    bool   `json:"isActive"`
	IsAutomatic bool   `json:"isAutomatic"`
}

type UpdateBadgeRequest struct {
	Description *string `json:"description,omitempty"`
	Icon        *string `json:"icon,omitempty"`
	Rules       []Rule  `json:"rules,omitempty"`
	Points      *int    `json:"points,omitempty"`
	IsActive    *bool   `json:"isActive,omitempty"`
	IsAutomatic *bool   `json:"isAutomatic,omitempty"`
}

// ValidateDefinition checks the invariants every stored badge must satisfy.
func ValidateDefinition(name string, rules []Rule, points int) error {
	if name == "" {
		return apperr.Validation("badge name is required")
	}
	if len(rules) == 0 {
		return apperr.Validation("badge requires at least one rule")
	}
	if points < 0 || points > 1000 {
		return apperr.Validation("badge points must be between 0 and 1000")
	}
	for i := range rules {
		if err := rules[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
