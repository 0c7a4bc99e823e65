package city

type CityConfig struct {
	ID   string
	Seed int64

	// Population.
	StartingAgents  int
	PopulationFloor int // below this, the birth trigger fires

	// Economy.
	TotalSupply     int
	StartingTokens  int
	DailyBurn       int
	TaxRatePercent  int // withheld on earn
	WealthCapPercent int // of total supply, per agent
	MinBalanceFloor int // transfer sources are clamped above this
	WelfareFloor    int
	WelfareGrant    int
	SurplusThreshold int
	CommunityBonus  int
	MintPeriodDays  int
	MintCapPercent  int // of supply, per period

	// Events & information flow.
	WitnessChance       int // permille, per bystander per crime
	BusyWitnessChance   int // permille, crimes at busy locations
	PublicKnowerThreshold int
	CoLocationRadius    int
	VictimReportChance  int // permille, per day once the victim notices
	VictimNoticeDays    int

	// Police.
	ColdCaseDays           int
	ArrestConfidencePermille int
	ArrestChancePermille   int // patrol scan hit rate
	WatchtowerArrestPermille int
	BribeDriftPermille     int // susceptibility drift per accept / per guilty verdict

	// Gangs.
	RecruitMoodThreshold float64
	RecruitTarget        int
	FormationPermille    int
	ExposurePermille     int
	LeaderMultiplier     float64
	MemberMultiplier     float64

	// Projects.
	AbandonDays int

	// Messaging.
	MessageTTLDays int
	InboxLimit     int

	// Stochastic daily events (permille, rolled per alive agent per day).
	// For most permille/threshold knobs, zero means "use the default" and
	// a negative value disables the mechanism outright.
	// ArrestConfidencePermille, PublicKnowerThreshold, RecruitTarget and
	// StrongEarningsThreshold treat any value <= 0 as "use the default".
	HeartAttackPermille int
	WindfallPermille    int

	TheftSuccessPermille int

	// Decision layer.
	DecisionWorkers       int
	DecisionTimeoutMs     int
	ParallelDecisions     bool
	StrongEarningsThreshold int

	// Newborns.
	GraduationScore int

	// Trials.
	SentenceDays int
	DefaultFine  int
}

func (c *CityConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "aicity"
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
	if c.StartingAgents <= 0 {
		c.StartingAgents = 10
	}
	if c.PopulationFloor == 0 {
		c.PopulationFloor = 6
	}
	if c.TotalSupply <= 0 {
		c.TotalSupply = 10_000_000
	}
	if c.StartingTokens <= 0 {
		c.StartingTokens = 1000
	}
	if c.DailyBurn <= 0 {
		c.DailyBurn = 100
	}
	if c.TaxRatePercent <= 0 {
		c.TaxRatePercent = 10
	}
	if c.WealthCapPercent <= 0 {
		c.WealthCapPercent = 5
	}
	if c.MinBalanceFloor <= 0 {
		c.MinBalanceFloor = 50
	}
	if c.WelfareFloor == 0 {
		c.WelfareFloor = 150
	}
	if c.WelfareGrant == 0 {
		c.WelfareGrant = 200
	}
	if c.SurplusThreshold == 0 {
		c.SurplusThreshold = 50_000
	}
	if c.CommunityBonus == 0 {
		c.CommunityBonus = 25
	}
	if c.MintPeriodDays <= 0 {
		c.MintPeriodDays = 30
	}
	if c.MintCapPercent <= 0 {
		c.MintCapPercent = 10
	}
	if c.WitnessChance == 0 {
		c.WitnessChance = 150
	}
	if c.BusyWitnessChance == 0 {
		c.BusyWitnessChance = 300
	}
	if c.PublicKnowerThreshold <= 0 {
		c.PublicKnowerThreshold = 5
	}
	if c.CoLocationRadius <= 0 {
		c.CoLocationRadius = 4
	}
	if c.VictimReportChance == 0 {
		c.VictimReportChance = 600
	}
	if c.VictimNoticeDays <= 0 {
		c.VictimNoticeDays = 3
	}
	if c.ColdCaseDays == 0 {
		c.ColdCaseDays = 14
	}
	if c.ArrestConfidencePermille <= 0 {
		c.ArrestConfidencePermille = 650
	}
	if c.ArrestChancePermille == 0 {
		c.ArrestChancePermille = 250
	}
	if c.WatchtowerArrestPermille == 0 {
		c.WatchtowerArrestPermille = 300
	}
	if c.BribeDriftPermille == 0 {
		c.BribeDriftPermille = 50
	}
	if c.RecruitMoodThreshold == 0 {
		c.RecruitMoodThreshold = -0.70
	}
	if c.RecruitTarget <= 0 {
		c.RecruitTarget = 2
	}
	if c.FormationPermille == 0 {
		c.FormationPermille = 300
	}
	if c.ExposurePermille == 0 {
		c.ExposurePermille = 400
	}
	if c.LeaderMultiplier <= 0 {
		c.LeaderMultiplier = 1.4
	}
	if c.MemberMultiplier <= 0 {
		c.MemberMultiplier = 1.2
	}
	if c.AbandonDays <= 0 {
		c.AbandonDays = 3
	}
	if c.MessageTTLDays <= 0 {
		c.MessageTTLDays = 3
	}
	if c.InboxLimit <= 0 {
		c.InboxLimit = 10
	}
	if c.HeartAttackPermille == 0 {
		c.HeartAttackPermille = 20
	}
	if c.WindfallPermille == 0 {
		c.WindfallPermille = 10
	}
	if c.TheftSuccessPermille == 0 {
		c.TheftSuccessPermille = 450
	}
	if c.DecisionWorkers <= 0 {
		c.DecisionWorkers = 4
	}
	if c.DecisionTimeoutMs <= 0 {
		c.DecisionTimeoutMs = 30_000
	}
	if c.StrongEarningsThreshold <= 0 {
		c.StrongEarningsThreshold = 150
	}
	if c.GraduationScore <= 0 {
		c.GraduationScore = 100
	}
	if c.SentenceDays <= 0 {
		c.SentenceDays = 3
	}
	if c.DefaultFine <= 0 {
		c.DefaultFine = 300
	}
}
