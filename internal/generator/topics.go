package generator

import (
	"strings"

	"github.com/quizy/backend/internal/apperr"
	"github.com/quizy/backend/internal/models"
)

type Subtopic struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type TopicGroup struct {
	Value     string     `json:"value"`
	Label     string     `json:"label"`
	Subtopics []Subtopic `json:"subtopics"`
}

var catalogue = []TopicGroup{
	{
		Value: "number-operations",
		Label: "Number Operations",
		Subtopics: []Subtopic{
			{Value: "addition-subtraction", Label: "Addition and Subtraction"},
			{Value: "multiplication-division", Label: "Multiplication and Division"},
			{Value: "fractions", Label: "Fractions"},
			{Value: "decimals", Label: "Decimals"},
			{Value: "percentages", Label: "Percentages"},
		},
	},
	{
		Value: "algebra",
		Label: "Algebra",
		Subtopics: []Subtopic{
			{Value: "linear-equations", Label: "Linear Equations"},
			{Value: "quadratic-equations", Label: "Quadratic Equations"},
			{Value: "inequalities", Label: "Inequalities"},
		},
	},
	{
		Value: "geometry",
		Label: "Geometry",
		Subtopics: []Subtopic{
			{Value: "angles", Label: "Angles"},
			{Value: "triangles", Label: "Triangles"},
			{Value: "circles", Label: "Circles"},
			{Value: "area-perimeter", Label: "Area and Perimeter"},
			{Value: "volume-surface-area", Label: "Volume and Surface Area"},
		},
	},
	{
		Value: "trigonometry",
		Label: "Trigonometry",
		Subtopics: []Subtopic{
			{Value: "right-triangle-trigonometry", Label: "Right Triangle Trigonometry"},
			{Value: "sine-cosine-rules", Label: "Sine and Cosine Rules"},
			{Value: "trigonometric-functions", Label: "Trigonometric Functions"},
			{Value: "trigonometric-identities", Label: "Trigonometric Identities"},
		},
	},
	{
		Value: "statistics",
		Label: "Statistics",
		Subtopics: []Subtopic{
			{Value: "mean-median-mode", Label: "Mean, Median, Mode"},
			{Value: "data-distribution", Label: "Data Distribution"},
			{Value: "probability", Label: "Probability"},
			{Value: "standard-deviation", Label: "Standard Deviation"},
		},
	},
}

// Catalogue returns the selectable topic tree.
func Catalogue() []TopicGroup {
	return catalogue
}

// DescribeTopic returns the human readable label of a selection, e.g.
// "Algebra: Linear Equations". Unknown values fall back to the raw label.
func DescribeTopic(t models.Topic) string {
	for _, g := range catalogue {
		if g.Value != t.Topic {
			continue
		}
		if t.Subtopic == nil || *t.Subtopic == "" {
			return g.Label
		}
		for _, s := range g.Subtopics {
			if s.Value == *t.Subtopic {
				return g.Label + ": " + s.Label
			}
		}
	}
	return t.Label()
}

// ValidateTopics checks a quiz's topic selection against the catalogue.
func ValidateTopics(topics []models.Topic) error {
	if len(topics) == 0 {
		return apperr.Validation("at least one topic is required")
	}
	seen := make(map[string]bool, len(topics))
	for i, t := range topics {
		group := findGroup(t.Topic)
		if group == nil {
			return apperr.Validation("topics[%d]: unknown topic %q", i, t.Topic)
		}
		if t.Subtopic != nil && strings.TrimSpace(*t.Subtopic) != "" && !group.hasSubtopic(*t.Subtopic) {
			return apperr.Validation("topics[%d]: unknown subtopic %q for topic %q", i, *t.Subtopic, t.Topic)
		}
		key := t.Label()
		if seen[key] {
			return apperr.Validation("topics[%d]: duplicate selection %q", i, key)
		}
		seen[key] = true
	}
	return nil
}

func findGroup(value string) *TopicGroup {
	for i := range catalogue {
		if catalogue[i].Value == value {
			return &catalogue[i]
		}
	}
	return nil
}

func (g *TopicGroup) hasSubtopic(value string) bool {
	for _, s := range g.Subtopics {
		if s.Value == value {
			return true
		}
	}
	return false
}
