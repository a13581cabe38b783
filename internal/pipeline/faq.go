package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/jerilmartin/infini8seo-sub000/internal/models"
)

var faqHeadingPattern = regexp.MustCompile(`(?i)^(FAQ|Frequently Asked Questions)\b`)

// HasFAQSection reports whether the Markdown contains a level-2 FAQ heading.
// Parsing the document beats a line regex here: it ignores "## FAQ" text
// inside code blocks and tolerates heading attribute syntax.
func HasFAQSection(markdown string) bool {
	source := []byte(markdown)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	found := false
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok || heading.Level != 2 {
			return ast.WalkContinue, nil
		}
		var title strings.Builder
		for child := heading.FirstChild(); child != nil; child = child.NextSibling() {
			if t, ok := child.(*ast.Text); ok {
				title.Write(t.Segment.Value(source))
			}
		}
		if faqHeadingPattern.MatchString(strings.TrimSpace(title.String())) {
			found = true
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return found
}

// BuildFallbackFAQ renders the deterministic FAQ section appended when the
// model omits one. Questions derive from the scenario and the first value
// proposition so the section stays on topic.
func BuildFallbackFAQ(scenario models.Scenario, niche string, valuePropositions []string) string {
	valueProp := niche
	if len(valuePropositions) > 0 && strings.TrimSpace(valuePropositions[0]) != "" {
		valueProp = valuePropositions[0]
	}

	archetype := scenario.PersonaArchetype
	if archetype == "" {
		archetype = "professionals"
	}

	goal := strings.TrimSpace(scenario.GoalFocus)
	if goal == "" {
		goal = fmt.Sprintf("getting results with %s", niche)
	}

	var b strings.Builder
	b.WriteString("\n\n## Frequently Asked Questions\n\n")

	b.WriteString(fmt.Sprintf("### Who benefits most from %s?\n\n", niche))
	b.WriteString(fmt.Sprintf("%s facing the challenges described above see the biggest gains, especially when %s is a priority.\n\n",
		archetype, strings.ToLower(goal)))

	b.WriteString("### How do I get started?\n\n")
	b.WriteString(fmt.Sprintf("Start small: %s gives you a practical entry point without a large upfront commitment.\n\n", valueProp))

	b.WriteString("### How long until I see results?\n\n")
	b.WriteString(fmt.Sprintf("Most people working toward %s notice measurable improvement within the first few weeks of consistent effort.\n\n",
		strings.ToLower(goal)))

	b.WriteString("### What is the most common mistake to avoid?\n\n")
	if pain := strings.TrimSpace(scenario.PainPointDetail); pain != "" {
		b.WriteString(fmt.Sprintf("Ignoring the core problem. %s This article's recommendations address exactly that.\n\n", pain))
	} else {
		b.WriteString("Trying to do everything at once. Pick one recommendation from this article and apply it before moving to the next.\n\n")
	}

	b.WriteString(fmt.Sprintf("### Where can I learn more about %s?\n\n", niche))
	b.WriteString(fmt.Sprintf("Revisit the sections above, and explore how %s fits your specific situation.\n", valueProp))

	return b.String()
}

// EnsureFAQSection returns the Markdown with an FAQ section guaranteed
func EnsureFAQSection(markdown string, scenario models.Scenario, niche string, valuePropositions []string) string {
	if HasFAQSection(markdown) {
		return markdown
	}
	return markdown + BuildFallbackFAQ(scenario, niche, valuePropositions)
}
