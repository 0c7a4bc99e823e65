// Package tuning loads the numeric knobs of the simulation from a yaml
// file. Zero values fall through to the engine defaults.
package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"aicity.ai/internal/sim/city"
)

type Tuning struct {
	CityID string `yaml:"city_id"`
	Seed   int64  `yaml:"seed"`

	StartingAgents  int `yaml:"starting_agents"`
	PopulationFloor int `yaml:"population_floor"`

	TotalSupply      int `yaml:"total_supply"`
	StartingTokens   int `yaml:"starting_tokens"`
	DailyBurn        int `yaml:"daily_burn"`
	TaxRatePercent   int `yaml:"tax_rate_percent"`
	WealthCapPercent int `yaml:"wealth_cap_percent"`
	MinBalanceFloor  int `yaml:"min_balance_floor"`
	WelfareFloor     int `yaml:"welfare_floor"`
	WelfareGrant     int `yaml:"welfare_grant"`
	SurplusThreshold int `yaml:"surplus_threshold"`
	CommunityBonus   int `yaml:"community_bonus"`
	MintPeriodDays   int `yaml:"mint_period_days"`
	MintCapPercent   int `yaml:"mint_cap_percent"`

	WitnessChance         int `yaml:"witness_chance_permille"`
	BusyWitnessChance     int `yaml:"busy_witness_chance_permille"`
	PublicKnowerThreshold int `yaml:"public_knower_threshold"`
	CoLocationRadius      int `yaml:"co_location_radius"`
	VictimReportChance    int `yaml:"victim_report_chance_permille"`
	VictimNoticeDays      int `yaml:"victim_notice_days"`

	ColdCaseDays             int `yaml:"cold_case_days"`
	ArrestConfidencePermille int `yaml:"arrest_confidence_permille"`
	ArrestChancePermille     int `yaml:"arrest_chance_permille"`
	WatchtowerArrestPermille int `yaml:"watchtower_arrest_permille"`
	BribeDriftPermille       int `yaml:"bribe_drift_permille"`

	RecruitMoodThreshold float64 `yaml:"recruit_mood_threshold"`
	RecruitTarget        int     `yaml:"recruit_target"`
	FormationPermille    int     `yaml:"formation_permille"`
	ExposurePermille     int     `yaml:"exposure_permille"`
	LeaderMultiplier     float64 `yaml:"leader_multiplier"`
	MemberMultiplier     float64 `yaml:"member_multiplier"`

	AbandonDays int `yaml:"abandon_days"`

	MessageTTLDays int `yaml:"message_ttl_days"`
	InboxLimit     int `yaml:"inbox_limit"`

	HeartAttackPermille int `yaml:"heart_attack_permille"`
	WindfallPermille    int `yaml:"windfall_permille"`

	DecisionWorkers         int  `yaml:"decision_workers"`
	DecisionTimeoutMs       int  `yaml:"decision_timeout_ms"`
	ParallelDecisions       bool `yaml:"parallel_decisions"`
	StrongEarningsThreshold int  `yaml:"strong_earnings_threshold"`

	GraduationScore int `yaml:"graduation_score"`
	SentenceDays    int `yaml:"sentence_days"`
	DefaultFine     int `yaml:"default_fine"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// CityConfig maps the file onto the engine config; zero values keep the
// engine defaults.
func (t Tuning) CityConfig() city.CityConfig {
	return city.CityConfig{
		ID:                       t.CityID,
		Seed:                     t.Seed,
		StartingAgents:           t.StartingAgents,
		PopulationFloor:          t.PopulationFloor,
		TotalSupply:              t.TotalSupply,
		StartingTokens:           t.StartingTokens,
		DailyBurn:                t.DailyBurn,
		TaxRatePercent:           t.TaxRatePercent,
		WealthCapPercent:         t.WealthCapPercent,
		MinBalanceFloor:          t.MinBalanceFloor,
		WelfareFloor:             t.WelfareFloor,
		WelfareGrant:             t.WelfareGrant,
		SurplusThreshold:         t.SurplusThreshold,
		CommunityBonus:           t.CommunityBonus,
		MintPeriodDays:           t.MintPeriodDays,
		MintCapPercent:           t.MintCapPercent,
		WitnessChance:            t.WitnessChance,
		BusyWitnessChance:        t.BusyWitnessChance,
		PublicKnowerThreshold:    t.PublicKnowerThreshold,
		CoLocationRadius:         t.CoLocationRadius,
		VictimReportChance:       t.VictimReportChance,
		VictimNoticeDays:         t.VictimNoticeDays,
		ColdCaseDays:             t.ColdCaseDays,
		ArrestConfidencePermille: t.ArrestConfidencePermille,
		ArrestChancePermille:     t.ArrestChancePermille,
		WatchtowerArrestPermille: t.WatchtowerArrestPermille,
		BribeDriftPermille:       t.BribeDriftPermille,
		RecruitMoodThreshold:     t.RecruitMoodThreshold,
		RecruitTarget:            t.RecruitTarget,
		FormationPermille:        t.FormationPermille,
		ExposurePermille:         t.ExposurePermille,
		LeaderMultiplier:         t.LeaderMultiplier,
		MemberMultiplier:         t.MemberMultiplier,
		AbandonDays:              t.AbandonDays,
		MessageTTLDays:           t.MessageTTLDays,
		InboxLimit:               t.InboxLimit,
		HeartAttackPermille:      t.HeartAttackPermille,
		WindfallPermille:         t.WindfallPermille,
		DecisionWorkers:          t.DecisionWorkers,
		DecisionTimeoutMs:        t.DecisionTimeoutMs,
		ParallelDecisions:        t.ParallelDecisions,
		StrongEarningsThreshold:  t.StrongEarningsThreshold,
		GraduationScore:          t.GraduationScore,
		SentenceDays:             t.SentenceDays,
		DefaultFine:              t.DefaultFine,
	}
}
