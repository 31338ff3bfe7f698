package agent

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"sort"
	"strings"

	"github.com/ent0n29/switchboard/internal/dialogue"
	"github.com/ent0n29/switchboard/internal/intent"
)

const messagePlaceholder = "{message}"

// Build turns a definition into an engine config. Every intent a rule can
// produce, plus the fallback, must have a template.
func Build(def Definition) (dialogue.Config, error) {
	if err := def.Validate(); err != nil {
		return dialogue.Config{}, err
	}

	rules, err := compileRules(def.FallbackLabel(), def.Rules)
	if err != nil {
		return dialogue.Config{}, fmt.Errorf("agent %s: %w", def.ID, err)
	}

	handlers := make(map[intent.Label]dialogue.Generator, len(def.Intents))
	for name, tpl := range def.Intents {
		handlers[intent.Label(name)] = templateGenerator(tpl)
	}

	facets := make(map[string]*intent.RuleSet, len(def.Facets))
	for _, f := range def.Facets {
		rs, err := compileRules(f.Fallback, f.Rules)
		if err != nil {
			return dialogue.Config{}, fmt.Errorf("agent %s: facet %s: %w", def.ID, f.Name, err)
		}
		facets[f.Name] = rs
	}

	var rating *regexp.Regexp
	if def.RatingPattern != "" {
		rating = regexp.MustCompile("(?i)" + def.RatingPattern)
	}

	return dialogue.Config{
		Agent:         def.ID,
		Rules:         rules,
		Handlers:      handlers,
		Schema:        dialogue.Schema{Fields: def.Fields, DefaultText: def.DefaultText},
		Facets:        facets,
		RatingPattern: rating,
	}, nil
}

func compileRules(fallback string, defs []RuleDef) (*intent.RuleSet, error) {
	rules := make([]intent.Rule, 0, len(defs))
	for _, d := range defs {
		var m intent.Matcher
		if d.Pattern != "" {
			p, err := intent.NewPattern(d.Pattern)
			if err != nil {
				return nil, err
			}
			m = p
		} else {
			m = intent.Keywords(d.Keywords)
		}
		rules = append(rules, intent.Rule{Label: intent.Label(d.Intent), Matcher: m})
	}
	return intent.NewRuleSet(intent.Label(fallback), rules...)
}

func templateGenerator(tpl Template) dialogue.Generator {
	return dialogue.GeneratorFunc(func(message string, metrics dialogue.MetricsSource) dialogue.Payload {
		quoted := strings.TrimSpace(message)
		parts := make([]string, 0, 2)
		if tpl.Header != "" {
			parts = append(parts, tpl.Header)
		}
		if len(tpl.Variants) > 0 {
			body := tpl.Variants[pick(quoted, len(tpl.Variants))]
			parts = append(parts, strings.TrimSpace(strings.ReplaceAll(body, messagePlaceholder, quoted)))
		}

		fields := make(map[string]dialogue.AnalysisBlock, len(tpl.Fields))
		for name, ft := range tpl.Fields {
			scores := make(map[string]float64, len(ft.Scores))
			keys := make([]string, 0, len(ft.Scores))
			for k := range ft.Scores {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				scores[k] = metrics.Score(ft.Scores[k][0], ft.Scores[k][1])
			}
			fields[name] = dialogue.AnalysisBlock{
				Scores:          scores,
				Insights:        fill(ft.Insights, quoted),
				Recommendations: fill(ft.Recommendations, quoted),
			}
		}
		return dialogue.Payload{Text: strings.Join(parts, "\n\n"), Fields: fields}
	})
}

// pick is stable for a given message so replays produce the same text.
func pick(message string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(message)))
	return int(h.Sum32() % uint32(n))
}

func fill(lines []string, message string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, strings.ReplaceAll(l, messagePlaceholder, message))
	}
	return out
}
