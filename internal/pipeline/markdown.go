package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jerilmartin/infini8seo-sub000/internal/models"
)

// CountWords counts maximal non-whitespace runs
func CountWords(s string) int {
	return len(strings.Fields(s))
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL slug from a title
func Slugify(title string) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = nonSlugChars.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 80 {
		slug = strings.Trim(slug[:80], "-")
	}
	return slug
}

// MetaDescription derives a meta description from the article body: the
// first paragraph of plain prose, clipped to 160 characters on a word
// boundary.
func MetaDescription(markdown string) string {
	const limit = 160

	for _, block := range strings.Split(markdown, "\n\n") {
		line := strings.TrimSpace(block)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") ||
			strings.HasPrefix(line, ">") || strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*") {
			continue
		}
		line = strings.ReplaceAll(line, "\n", " ")
		line = strings.ReplaceAll(line, "**", "")
		line = strings.ReplaceAll(line, "*", "")
		if len(line) <= limit {
			return line
		}
		clipped := line[:limit]
		if idx := strings.LastIndex(clipped, " "); idx > 0 {
			clipped = clipped[:idx]
		}
		return clipped + "..."
	}
	return ""
}

// InlineImages prepends one Markdown embed per image to the article body
func InlineImages(markdown string, images []models.ImageRef) string {
	if len(images) == 0 {
		return markdown
	}

	var b strings.Builder
	for _, img := range images {
		alt := img.Alt
		if alt == "" {
			alt = "article image"
		}
		b.WriteString(fmt.Sprintf("![%s](%s)\n", alt, img.URL))
		if img.Photographer != "" {
			b.WriteString(fmt.Sprintf("*Photo by [%s](%s)*\n", img.Photographer, img.PhotographerURL))
		}
		b.WriteString("\n")
	}
	b.WriteString(markdown)
	return b.String()
}
