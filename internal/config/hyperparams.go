package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment variable overrides, e.g. RULEVO_POP_SIZE.
const EnvPrefix = "RULEVO_"

const (
	ExecutorSerial   = "serial"
	ExecutorParallel = "parallel"
)

var ErrInvalidHyperparams = errors.New("invalid hyperparameters")

// Hyperparams is the flat, read-only registry the engine is configured from.
// Every field is addressable by its yaml name through Lookup.
type Hyperparams struct {
	Env string `json:"env" yaml:"env" validate:"required"`

	PopSize     int `json:"pop_size" yaml:"pop_size" validate:"gte=2"`
	NumElites   int `json:"num_elites" yaml:"num_elites" validate:"gte=0"`
	TournSize   int `json:"tourn_size" yaml:"tourn_size" validate:"gte=2"`
	Generations int `json:"generations" yaml:"generations" validate:"gte=1"`

	PCross     float64 `json:"p_cross" yaml:"p_cross" validate:"gte=0,lte=1"`
	PCrossSwap float64 `json:"p_cross_swap" yaml:"p_cross_swap" validate:"gte=0,lte=1"`
	PMut       float64 `json:"p_mut" yaml:"p_mut" validate:"gte=0,lte=1"`

	MNought      int     `json:"m_nought" yaml:"m_nought" validate:"gte=0"`
	RNought      float64 `json:"r_nought" yaml:"r_nought" validate:"gte=0,lte=1"`
	MutSigmaPcnt float64 `json:"mut_sigma_pcnt" yaml:"mut_sigma_pcnt" validate:"gte=0"`

	IndivSize      int  `json:"indiv_size" yaml:"indiv_size" validate:"gte=0"`
	IndivSizeMin   int  `json:"indiv_size_min" yaml:"indiv_size_min" validate:"gte=0"`
	IndivSizeMax   int  `json:"indiv_size_max" yaml:"indiv_size_max" validate:"gte=0"`
	VariableLength bool `json:"variable_length" yaml:"variable_length"`

	NumRollouts int     `json:"num_rollouts" yaml:"num_rollouts" validate:"gte=1"`
	Gamma       float64 `json:"gamma" yaml:"gamma" validate:"gte=0,lte=1"`
	PerfGoal    float64 `json:"perf_goal" yaml:"perf_goal"`
	UsePerfGoal bool    `json:"use_perf_goal" yaml:"use_perf_goal"`

	Seed                uint64 `json:"seed" yaml:"seed"`
	UseIndivPolicyCache bool   `json:"use_indiv_policy_cache" yaml:"use_indiv_policy_cache"`

	Inference     string `json:"inference" yaml:"inference" validate:"oneof=decision_list specificity"`
	DefaultAction int    `json:"default_action" yaml:"default_action" validate:"gte=-1"`

	Executor string `json:"executor" yaml:"executor" validate:"oneof=serial parallel"`
	Workers  int    `json:"workers" yaml:"workers" validate:"gte=0"`
}

// Default returns a configuration that runs the corridor scape.
func Default() Hyperparams {
	return Hyperparams{
		Env:                 "corridor",
		PopSize:             50,
		NumElites:           2,
		TournSize:           3,
		Generations:         50,
		PCross:              0.7,
		PCrossSwap:          0.5,
		PMut:                0.05,
		RNought:             0.1,
		MutSigmaPcnt:        0.1,
		IndivSize:           8,
		NumRollouts:         10,
		Gamma:               1.0,
		Seed:                1,
		UseIndivPolicyCache: true,
		Inference:           "decision_list",
		DefaultAction:       -1,
		Executor:            ExecutorParallel,
	}
}

// IsVariableLength reports whether individuals vary in rule count. Setting
// either size bound selects variable length; indiv_size is then ignored.
func (h Hyperparams) IsVariableLength() bool {
	return h.VariableLength || h.IndivSizeMin > 0 || h.IndivSizeMax > 0
}

// Load applies defaults, then the optional YAML/JSON file, then RULEVO_*
// environment overrides, and validates the result.
func Load(path string) (Hyperparams, error) {
	h := Default()
	if path != "" {
		if err := loadFile(path, &h); err != nil {
			return h, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := applyEnv(&h, os.LookupEnv); err != nil {
		return h, fmt.Errorf("apply env overrides: %w", err)
	}
	if err := h.Validate(); err != nil {
		return h, err
	}
	return h, nil
}

func loadFile(path string, h *Hyperparams) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, h); err != nil {
		if jsonErr := json.Unmarshal(data, h); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		return yamlName(field)
	})
	return v
}

// Validate checks field ranges and the cross-field invariants. All problems
// are reported together.
func (h Hyperparams) Validate() error {
	var errs []error
	if err := validate.Struct(h); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs = append(errs, fmt.Errorf("%s: failed %q (param %q, got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	if h.NumElites > h.PopSize {
		errs = append(errs, fmt.Errorf("num_elites (%d) exceeds pop_size (%d)", h.NumElites, h.PopSize))
	}
	if (h.PopSize-h.NumElites)%2 != 0 {
		errs = append(errs, fmt.Errorf("pop_size - num_elites must be even, got %d", h.PopSize-h.NumElites))
	}
	if h.IsVariableLength() {
		if h.IndivSizeMin < 1 {
			errs = append(errs, fmt.Errorf("indiv_size_min must be >= 1 for variable-length individuals, got %d", h.IndivSizeMin))
		}
		if h.IndivSizeMax < h.IndivSizeMin {
			errs = append(errs, fmt.Errorf("indiv_size_max (%d) must be >= indiv_size_min (%d)", h.IndivSizeMax, h.IndivSizeMin))
		}
	} else if h.IndivSize < 1 {
		errs = append(errs, fmt.Errorf("indiv_size must be >= 1, got %d", h.IndivSize))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidHyperparams, errors.Join(errs...))
}

// Lookup reads one hyperparameter by its registry name.
func (h Hyperparams) Lookup(name string) (any, bool) {
	v := reflect.ValueOf(h)
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if yamlName(t.Field(i)) == name {
			return v.Field(i).Interface(), true
		}
	}
	return nil, false
}

// Names lists every registry name in sorted order.
func Names() []string {
	t := reflect.TypeOf(Hyperparams{})
	names := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		names = append(names, yamlName(t.Field(i)))
	}
	sort.Strings(names)
	return names
}

// YAML renders the configuration as it is stored in run artifacts.
func (h Hyperparams) YAML() ([]byte, error) {
	return yaml.Marshal(h)
}

func applyEnv(h *Hyperparams, lookup func(string) (string, bool)) error {
	v := reflect.ValueOf(h).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name := yamlName(t.Field(i))
		raw, ok := lookup(EnvPrefix + strings.ToUpper(name))
		if !ok || raw == "" {
			continue
		}
		field := v.Field(i)
		switch field.Kind() {
		case reflect.String:
			field.SetString(raw)
		case reflect.Int:
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			field.SetInt(int64(parsed))
		case reflect.Uint64:
			parsed, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			field.SetUint(parsed)
		case reflect.Float64:
			parsed, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			field.SetFloat(parsed)
		case reflect.Bool:
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			field.SetBool(parsed)
		default:
			return fmt.Errorf("%s: unsupported field kind %s", name, field.Kind())
		}
	}
	return nil
}

func yamlName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
	if name == "" || name == "-" {
		return field.Name
	}
	return name
}
