package normalize

import (
	"strings"

	ingestdomain "github.com/basketlabs/shelfscout/internal/ingest/domain"
	"go.uber.org/zap"
)

// DefaultInternalCategory is assigned when no rule matches.
const DefaultInternalCategory = "Overig"

// InternalCategoryNames is the shared taxonomy every source maps into.
var InternalCategoryNames = []string{
	"Diepvries",
	"Baby & Kind",
	"Huisdier",
	"Alcohol",
	"Koffie & Thee",
	"Dranken",
	"Brood & Bakkerij",
	"Zuivel",
	"Vleeswaren & Kaas",
	"Vlees & Vis",
	"Vegan & Vegetarisch",
	"Maaltijden",
	"Wereldkeuken",
	"Snacks & Snoep",
	"Verzorging",
	"Huishoudelijk",
	"Groente & Fruit",
	"Overig",
}

var canonicalNames = func() map[string]struct{} {
	set := make(map[string]struct{}, len(InternalCategoryNames))
	for _, name := range InternalCategoryNames {
		set[name] = struct{}{}
	}
	return set
}()

// CategoryMapper maps a source's raw taxonomy onto the internal one using
// per-source rule tables keyed by raw category code, name or path tail.
type CategoryMapper struct {
	rules map[string]map[string]string
	log   *zap.Logger
}

func NewCategoryMapper(rules map[string]map[string]string, log *zap.Logger) *CategoryMapper {
	m := &CategoryMapper{
		rules: rules,
		log:   log.Named("ingest.categories"),
	}
	m.validateRuleTargets()
	return m
}

func (m *CategoryMapper) validateRuleTargets() {
	for source, mapping := range m.rules {
		for raw, target := range mapping {
			if _, ok := canonicalNames[target]; !ok {
				m.log.Warn("rule maps to non-canonical category",
					zap.String("source", source),
					zap.String("raw", raw),
					zap.String("target", target),
				)
			}
		}
	}
}

// Map returns the internal category for a candidate, or DefaultInternalCategory
// when no rule matches.
func (m *CategoryMapper) Map(c ingestdomain.Candidate) string {
	mapping := m.rules[c.SourceCode]
	if mapping == nil {
		return DefaultInternalCategory
	}

	keys := []string{c.StoreCategoryCode, c.StoreCategoryName}
	if len(c.CategoryPath) > 0 {
		keys = append(keys, c.CategoryPath[len(c.CategoryPath)-1])
	}
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		target, ok := mapping[key]
		if !ok {
			continue
		}
		if _, valid := canonicalNames[target]; !valid {
			m.log.Warn("rule hit maps to non-canonical category",
				zap.String("source", c.SourceCode),
				zap.String("raw", key),
				zap.String("target", target),
			)
			continue
		}
		return target
	}
	return DefaultInternalCategory
}
