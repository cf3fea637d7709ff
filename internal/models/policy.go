package models

// TitlePolicy gates postings on title keywords alone
type TitlePolicy struct {
	RequiredKeywords []string `toml:"required_keywords" json:"requiredKeywords"`
	ExcludedKeywords []string `toml:"excluded_keywords" json:"excludedKeywords"`
}

// FreshnessPolicy rejects postings older than MaxAgeDays (0 disables)
type FreshnessPolicy struct {
	MaxAgeDays int `toml:"max_age_days" json:"maxAgeDays"`
}

// WorkArrangementPolicy controls remote/hybrid/onsite acceptance
type WorkArrangementPolicy struct {
	AllowRemote          bool     `toml:"allow_remote" json:"allowRemote"`
	AllowHybrid          bool     `toml:"allow_hybrid" json:"allowHybrid"`
	AllowOnsite          bool     `toml:"allow_onsite" json:"allowOnsite"`
	WillRelocate         bool     `toml:"will_relocate" json:"willRelocate"`
	UserLocation         string   `toml:"user_location" json:"userLocation"`
	RemoteKeywords       []string `toml:"remote_keywords" json:"remoteKeywords"`
	TreatUnknownAsOnsite bool     `toml:"treat_unknown_as_onsite" json:"treatUnknownAsOnsite"`
	MaxTimezoneDiffHours float64  `toml:"max_timezone_diff_hours" json:"maxTimezoneDiffHours"`
}

// EmploymentTypePolicy restricts accepted employment types
type EmploymentTypePolicy struct {
	Allowed []string `toml:"allowed" json:"allowed"`
}

// SalaryPolicy is the structured-salary floor
type SalaryPolicy struct {
	Minimum float64 `toml:"minimum" json:"minimum"`
}

// TechnologyPolicy lists hard-rejected technology tags
type TechnologyPolicy struct {
	Rejected []string `toml:"rejected" json:"rejected"`
}

// PrefilterPolicy is the cheap structured gate applied before any
// expensive analysis. Missing data always passes; only explicit
// evidence rejects.
type PrefilterPolicy struct {
	Title           TitlePolicy           `toml:"title" json:"title"`
	Freshness       FreshnessPolicy       `toml:"freshness" json:"freshness"`
	WorkArrangement WorkArrangementPolicy `toml:"work_arrangement" json:"workArrangement"`
	EmploymentType  EmploymentTypePolicy  `toml:"employment_type" json:"employmentType"`
	Salary          SalaryPolicy          `toml:"salary" json:"salary"`
	Technology      TechnologyPolicy      `toml:"technology" json:"technology"`
}

// SeniorityPolicy scores title seniority tokens
type SeniorityPolicy struct {
	Preferred      []string           `toml:"preferred" json:"preferred"`
	Acceptable     []string           `toml:"acceptable" json:"acceptable"`
	Rejected       []string           `toml:"rejected" json:"rejected"`
	PreferredBonus float64            `toml:"preferred_bonus" json:"preferredBonus"`
	StrikeWeights  map[string]float64 `toml:"strike_weights" json:"strikeWeights"`
}

// LocationScoring controls timezone and relocation scoring
type LocationScoring struct {
	UserTimezone         string  `toml:"user_timezone" json:"userTimezone"`
	UserCity             string  `toml:"user_city" json:"userCity"`
	MaxTimezoneDiffHours float64 `toml:"max_timezone_diff_hours" json:"maxTimezoneDiffHours"`
	PerHourPenalty       float64 `toml:"per_hour_penalty" json:"perHourPenalty"`
	HybridSameCityBonus  float64 `toml:"hybrid_same_city_bonus" json:"hybridSameCityBonus"`
	RemoteBonus          float64 `toml:"remote_bonus" json:"remoteBonus"`
	RelocationPenalty    float64 `toml:"relocation_penalty" json:"relocationPenalty"`
}

// TechnologyScoring scores the posting's technology signals
type TechnologyScoring struct {
	Required             []string `toml:"required" json:"required"`
	Preferred            []string `toml:"preferred" json:"preferred"`
	Disliked             []string `toml:"disliked" json:"disliked"`
	Rejected             []string `toml:"rejected" json:"rejected"`
	RequiredBonus        float64  `toml:"required_bonus" json:"requiredBonus"`
	PreferredBonus       float64  `toml:"preferred_bonus" json:"preferredBonus"`
	DislikedPenalty      float64  `toml:"disliked_penalty" json:"dislikedPenalty"`
	MissingAllReqPenalty float64  `toml:"missing_all_required_penalty" json:"missingAllRequiredPenalty"`
}

// SalaryScoring scores posting salary against user thresholds
type SalaryScoring struct {
	Minimum         float64 `toml:"minimum" json:"minimum"`
	Target          float64 `toml:"target" json:"target"`
	BelowTargetCap  float64 `toml:"below_target_cap" json:"belowTargetCap"`
	MeetsTargetBonus float64 `toml:"meets_target_bonus" json:"meetsTargetBonus"`
	EquityBonus     float64 `toml:"equity_bonus" json:"equityBonus"`
	ContractPenalty float64 `toml:"contract_penalty" json:"contractPenalty"`
}

// ExperienceScoring scores required-experience fit
type ExperienceScoring struct {
	UserYears             int     `toml:"user_years" json:"userYears"`
	MaxRequired           int     `toml:"max_required" json:"maxRequired"`
	OverqualifiedPerYear  float64 `toml:"overqualified_per_year" json:"overqualifiedPerYear"`
	OverqualifiedCap      float64 `toml:"overqualified_cap" json:"overqualifiedCap"`
}

// FreshnessScoring scores posting age
type FreshnessScoring struct {
	FreshDays         int     `toml:"fresh_days" json:"freshDays"`
	FreshBonus        float64 `toml:"fresh_bonus" json:"freshBonus"`
	StaleDays         int     `toml:"stale_days" json:"staleDays"`
	StalePenalty      float64 `toml:"stale_penalty" json:"stalePenalty"`
	VeryStaleDays     int     `toml:"very_stale_days" json:"veryStaleDays"`
	VeryStalePenalty  float64 `toml:"very_stale_penalty" json:"veryStalePenalty"`
	RepostPenalty     float64 `toml:"repost_penalty" json:"repostPenalty"`
}

// RoleFitScoring grants or removes points for role families
type RoleFitScoring struct {
	BackendBonus       float64 `toml:"backend_bonus" json:"backendBonus"`
	MLAIBonus          float64 `toml:"ml_ai_bonus" json:"mlAiBonus"`
	DevOpsSREBonus     float64 `toml:"devops_sre_bonus" json:"devopsSreBonus"`
	DataBonus          float64 `toml:"data_bonus" json:"dataBonus"`
	SecurityBonus      float64 `toml:"security_bonus" json:"securityBonus"`
	LeadBonus          float64 `toml:"lead_bonus" json:"leadBonus"`
	FrontendPenalty    float64 `toml:"frontend_penalty" json:"frontendPenalty"`
	ConsultingPenalty  float64 `toml:"consulting_penalty" json:"consultingPenalty"`
	ManagementPenalty  float64 `toml:"management_penalty" json:"managementPenalty"`
	ClearanceHardReject bool   `toml:"clearance_hard_reject" json:"clearanceHardReject"`
}

// CompanyScoring scores company-level signals
type CompanyScoring struct {
	PreferredCityOfficeBonus float64            `toml:"preferred_city_office_bonus" json:"preferredCityOfficeBonus"`
	RemoteFirstBonus         float64            `toml:"remote_first_bonus" json:"remoteFirstBonus"`
	AIMLFocusBonus           float64            `toml:"ai_ml_focus_bonus" json:"aiMlFocusBonus"`
	TierAdjustments          map[string]float64 `toml:"tier_adjustments" json:"tierAdjustments"`
}

// StrikeEnginePolicy drives the tier-2 weighted-rejection filter
type StrikeEnginePolicy struct {
	Enabled              bool               `toml:"enabled" json:"enabled"`
	StrikeThreshold      float64            `toml:"strike_threshold" json:"strikeThreshold"`
	RejectDays           int                `toml:"reject_days" json:"rejectDays"`
	StrikeDays           int                `toml:"strike_days" json:"strikeDays"`
	AgeStrikePoints      float64            `toml:"age_strike_points" json:"ageStrikePoints"`
	SalaryStrikeFloor    float64            `toml:"salary_strike_floor" json:"salaryStrikeFloor"`
	SalaryStrikePoints   float64            `toml:"salary_strike_points" json:"salaryStrikePoints"`
	SeniorityStrikes     map[string]float64 `toml:"seniority_strikes" json:"seniorityStrikes"`
	TechnologyRanks      map[string]string  `toml:"technology_ranks" json:"technologyRanks"` // tag -> "strike" or "fail"
	TechnologyStrikePoints float64          `toml:"technology_strike_points" json:"technologyStrikePoints"`
	MinDescriptionLength int                `toml:"min_description_length" json:"minDescriptionLength"`
	QualityStrikePoints  float64            `toml:"quality_strike_points" json:"qualityStrikePoints"`
	Buzzwords            []string           `toml:"buzzwords" json:"buzzwords"`
	BuzzwordStrikePoints float64            `toml:"buzzword_strike_points" json:"buzzwordStrikePoints"`
	CommissionIndicators []string           `toml:"commission_indicators" json:"commissionIndicators"`
}

// StopList tracks companies, keywords and domains the user never wants
type StopList struct {
	Companies []string `toml:"companies" json:"companies"`
	Keywords  []string `toml:"keywords" json:"keywords"`
	Domains   []string `toml:"domains" json:"domains"`
	Points    float64  `toml:"points" json:"points"`
}

// MatchPolicy is the full scoring and strike configuration document
type MatchPolicy struct {
	MinScore        float64               `toml:"min_score" json:"minScore"`
	Seniority       SeniorityPolicy       `toml:"seniority" json:"seniority"`
	Location        LocationScoring       `toml:"location" json:"location"`
	WorkArrangement WorkArrangementPolicy `toml:"work_arrangement" json:"workArrangement"`
	Technology      TechnologyScoring     `toml:"technology" json:"technology"`
	Salary          SalaryScoring         `toml:"salary" json:"salary"`
	Experience      ExperienceScoring     `toml:"experience" json:"experience"`
	Freshness       FreshnessScoring      `toml:"freshness" json:"freshness"`
	RoleFit         RoleFitScoring        `toml:"role_fit" json:"roleFit"`
	Company         CompanyScoring        `toml:"company" json:"company"`
	Skills          []string              `toml:"skills" json:"skills"`
	StrikeEngine    StrikeEnginePolicy    `toml:"strike_engine" json:"strikeEngine"`
	StopList        StopList              `toml:"stop_list" json:"stopList"`
}
