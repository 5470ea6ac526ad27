package genotype

import (
	"strconv"
	"strings"

	"rulevo/internal/scape"
)

// Condition is the antecedent of a rule. It is immutable: the phenotype is
// decoded once at construction and mutation builds a new Condition.
type Condition struct {
	alleles   []float64
	encoding  Encoding
	phenotype []Interval
}

func NewCondition(alleles []float64, encoding Encoding) *Condition {
	owned := append([]float64(nil), alleles...)
	return &Condition{
		alleles:   owned,
		encoding:  encoding,
		phenotype: encoding.Decode(owned),
	}
}

// Alleles returns a copy of the raw genotype values.
func (c *Condition) Alleles() []float64 {
	return append([]float64(nil), c.alleles...)
}

func (c *Condition) NumAlleles() int {
	return len(c.alleles)
}

func (c *Condition) Encoding() Encoding {
	return c.encoding
}

func (c *Condition) Phenotype() []Interval {
	return append([]Interval(nil), c.phenotype...)
}

// Generality is recomputed on each call; conditions are replaced rather
// than mutated so there is nothing to keep in sync.
func (c *Condition) Generality() float64 {
	return c.encoding.Generality(c.phenotype)
}

// Matches reports whether every phenotype interval contains the
// corresponding observation component.
func (c *Condition) Matches(obs scape.Observation) bool {
	for i, interval := range c.phenotype {
		if !interval.Contains(obs[i]) {
			return false
		}
	}
	return true
}

func (c *Condition) String() string {
	parts := make([]string, len(c.phenotype))
	for i, interval := range c.phenotype {
		parts[i] = interval.String()
	}
	return strings.Join(parts, " && ")
}

// Rule pairs a condition with the action it advocates.
type Rule struct {
	Condition *Condition
	Action    scape.Action
}

func (r Rule) Matches(obs scape.Observation) bool {
	return r.Condition.Matches(obs)
}

func (r Rule) Generality() float64 {
	return r.Condition.Generality()
}

// NumAlleles is the rule's width in a flattened genotype: condition alleles
// plus one action allele.
func (r Rule) NumAlleles() int {
	return r.Condition.NumAlleles() + 1
}

func (r Rule) String() string {
	return r.Condition.String() + " -> " + strconv.Itoa(int(r.Action))
}
