package agent

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"rulevo/internal/scape"
)

type RuleSummary struct {
	TotalRules         int                  `json:"total_rules"`
	MeanGenerality     float64              `json:"mean_generality"`
	ActionDistribution map[scape.Action]int `json:"action_distribution"`
}

type Signature struct {
	Fingerprint string      `json:"fingerprint"`
	Summary     RuleSummary `json:"summary"`
}

// ComputeSignature hashes the genotype (alleles and actions in rule order)
// and summarizes the rule list.
func ComputeSignature(ind *Individual) Signature {
	actionDist := make(map[scape.Action]int)
	generalitySum := 0.0
	parts := make([]string, 0, len(ind.rules)+1)
	parts = append(parts, fmt.Sprintf("n=%d", len(ind.rules)))
	for _, rule := range ind.rules {
		actionDist[rule.Action]++
		generalitySum += rule.Generality()
		alleles := rule.Condition.Alleles()
		encoded := make([]string, len(alleles))
		for i, allele := range alleles {
			encoded[i] = fmt.Sprintf("%g", allele)
		}
		parts = append(parts, fmt.Sprintf("%s>%d", strings.Join(encoded, ","), rule.Action))
	}

	summary := RuleSummary{
		TotalRules:         len(ind.rules),
		ActionDistribution: actionDist,
	}
	if len(ind.rules) > 0 {
		summary.MeanGenerality = generalitySum / float64(len(ind.rules))
	}

	actions := make([]int, 0, len(actionDist))
	for action := range actionDist {
		actions = append(actions, int(action))
	}
	sort.Ints(actions)
	for _, action := range actions {
		parts = append(parts, fmt.Sprintf("a:%d=%d", action, actionDist[scape.Action(action)]))
	}

	digest := sha1.Sum([]byte(strings.Join(parts, "|")))
	return Signature{
		Fingerprint: hex.EncodeToString(digest[:8]),
		Summary:     summary,
	}
}
