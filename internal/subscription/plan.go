package subscription

// PlanTrial is the name of the free trial plan.
const PlanTrial = "trial"

// Plan is a priced feature tier. Prices are in cents.
type Plan struct {
	ID               string   `json:"id" yaml:"id"`
	Name             string   `json:"name" yaml:"name"`
	DisplayName      string   `json:"display_name" yaml:"display_name"`
	MonthlyPrice     int64    `json:"monthly_price" yaml:"monthly_price"`
	AnnualPrice      int64    `json:"annual_price" yaml:"annual_price"`
	Features         []string `json:"features" yaml:"features"`
	MaxProfessionals *int     `json:"max_professionals,omitempty" yaml:"max_professionals"`
}

// Price returns the plan price for the cycle.
func (p *Plan) Price(c Cycle) int64 {
	if c == CycleMonthly {
		return p.MonthlyPrice
	}
	return p.AnnualPrice
}

// Label is the human name used in charge descriptions.
func (p *Plan) Label() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}
