package engine

import "fmt"

// ClaimRule is one paired-field contract: whoever sets Field to WinValue
// first forces the opponent's OpponentField to LoseValue.
type ClaimRule struct {
	Field         string `yaml:"field"`
	OpponentField string `yaml:"opponent_field"`
	WinValue      string `yaml:"win_value"`
	LoseValue     string `yaml:"lose_value"`
}

// ClaimTable indexes rules by requester field. An empty table accepts any
// well-formed claim as sent.
type ClaimTable map[string]ClaimRule

func NewClaimTable(rules []ClaimRule) (ClaimTable, error) {
	t := make(ClaimTable, len(rules))
	for _, r := range rules {
		if r.Field == "" || r.WinValue == "" {
			return nil, fmt.Errorf("claim rule %+v: field and win_value are required", r)
		}
		if r.WinValue == r.LoseValue {
			return nil, fmt.Errorf("claim rule %q: win_value equals lose_value", r.Field)
		}
		if _, dup := t[r.Field]; dup {
			return nil, fmt.Errorf("claim rule %q: duplicate field", r.Field)
		}
		if r.OpponentField == "" {
			r.OpponentField = r.Field
		}
		t[r.Field] = r
	}
	return t, nil
}

// Resolve fills empty claim values from the matching rule and rejects values
// that contradict it.
func (t ClaimTable) Resolve(c Claim) (Claim, error) {
	if len(t) == 0 {
		return c, c.Validate()
	}
	rule, ok := t[c.FieldID]
	if !ok {
		return c, fmt.Errorf("%w: %q", ErrUnknownClaim, c.FieldID)
	}

	fill := func(got *string, want, name string) error {
		if *got == "" {
			*got = want
			return nil
		}
		if *got != want {
			return fmt.Errorf("%w: %s %q, rule %q has %q", ErrClaimMismatch, name, *got, rule.Field, want)
		}
		return nil
	}
	if err := fill(&c.OpponentFieldID, rule.OpponentField, "opponent field"); err != nil {
		return c, err
	}
	if err := fill(&c.WinValue, rule.WinValue, "win value"); err != nil {
		return c, err
	}
	// An empty lose value is legal in a rule, so only a conflicting one is rejected.
	if c.LoseValue != "" && c.LoseValue != rule.LoseValue {
		return c, fmt.Errorf("%w: lose value %q, rule %q has %q", ErrClaimMismatch, c.LoseValue, rule.Field, rule.LoseValue)
	}
	c.LoseValue = rule.LoseValue
	return c, c.Validate()
}
