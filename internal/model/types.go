package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord describes one evolutionary run.
type RunRecord struct {
	VersionedRecord
	ID           string    `json:"id"`
	Env          string    `json:"env"`
	Seed         uint64    `json:"seed"`
	Inference    string    `json:"inference"`
	PopSize      int       `json:"pop_size"`
	Generations  int       `json:"generations"`
	BestPerf     float64   `json:"best_perf"`
	GoalReached  bool      `json:"goal_reached"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	ConfigYAML   string    `json:"config_yaml,omitempty"`
	ArtifactsDir string    `json:"artifacts_dir,omitempty"`
}

// GenerationDiagnostics summarizes one population snapshot. Generation 0 is
// the initial population.
type GenerationDiagnostics struct {
	Generation           int     `json:"generation"`
	BestPerf             float64 `json:"best_perf"`
	MeanPerf             float64 `json:"mean_perf"`
	MinPerf              float64 `json:"min_perf"`
	StdDevPerf           float64 `json:"stddev_perf"`
	MeanRuleCount        float64 `json:"mean_rule_count"`
	MeanGenerality       float64 `json:"mean_generality"`
	Assessments          int     `json:"assessments"`
	SkippedAssessments   int     `json:"skipped_assessments"`
	TimeStepsUsed        int     `json:"time_steps_used"`
	FingerprintDiversity int     `json:"fingerprint_diversity"`
}

type IntervalRecord struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

type RuleRecord struct {
	Intervals  []IntervalRecord `json:"intervals"`
	Alleles    []float64        `json:"alleles"`
	Action     int              `json:"action"`
	Generality float64          `json:"generality"`
}

// IndividualRecord is the persisted form of an assessed individual.
type IndividualRecord struct {
	VersionedRecord
	ID            string       `json:"id"`
	Fingerprint   string       `json:"fingerprint"`
	Perf          float64      `json:"perf"`
	TimeStepsUsed int          `json:"time_steps_used"`
	Rules         []RuleRecord `json:"rules"`
}
