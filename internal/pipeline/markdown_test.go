package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jerilmartin/infini8seo-sub000/internal/models"
)

func TestCountWords(t *testing.T) {
	assert.Equal(t, 0, CountWords(""))
	assert.Equal(t, 0, CountWords("   \n\t "))
	assert.Equal(t, 3, CountWords("one two three"))
	assert.Equal(t, 4, CountWords("  spread\nacross \t lines\n\nhere  "))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "how-to-start-urban-beekeeping", Slugify("How to Start Urban Beekeeping"))
	assert.Equal(t, "what-s-next-for-seo", Slugify("  What's Next for SEO?! "))
	assert.Equal(t, "", Slugify("???"))

	long := Slugify(strings.Repeat("very long title ", 20))
	assert.LessOrEqual(t, len(long), 80)
	assert.False(t, strings.HasSuffix(long, "-"))
}

func TestMetaDescription(t *testing.T) {
	markdown := "# Title\n\nThis is the opening paragraph that should become the meta description.\n\n## Section\n\nMore text."
	assert.Equal(t, "This is the opening paragraph that should become the meta description.", MetaDescription(markdown))

	// Long paragraphs clip on a word boundary
	long := "# T\n\n" + strings.Repeat("word ", 60)
	meta := MetaDescription(long)
	assert.LessOrEqual(t, len(meta), 164)
	assert.True(t, strings.HasSuffix(meta, "..."))

	// Headings, lists and images are skipped
	assert.Equal(t, "", MetaDescription("# Only\n\n## Headings\n\n- and lists"))
}

func TestInlineImages(t *testing.T) {
	body := "# Article\n\nContent."

	assert.Equal(t, body, InlineImages(body, nil))

	result := InlineImages(body, []models.ImageRef{
		{URL: "https://images.example.com/1.jpg", Alt: "bees", Photographer: "A. Keeper", PhotographerURL: "https://example.com/ak"},
		{URL: "https://images.example.com/2.jpg"},
	})

	assert.True(t, strings.HasPrefix(result, "![bees](https://images.example.com/1.jpg)"))
	assert.Contains(t, result, "*Photo by [A. Keeper](https://example.com/ak)*")
	assert.Contains(t, result, "![article image](https://images.example.com/2.jpg)")
	assert.True(t, strings.HasSuffix(result, body))
}
