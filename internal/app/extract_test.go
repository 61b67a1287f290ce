package app

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestExtract_TitleAndParagraphFragments(t *testing.T) {
	body := []byte(`<!DOCTYPE html>
<html>
<head><title>  RBI - Circulars  </title><title>Second</title></head>
<body>
  <nav>Home | About</nav>
  <p>  Master Direction on KYC  </p>
  <p>   </p>
  <p>Issued on <b>01 Jan 2024</b>, effective immediately.</p>
  <div>Not a paragraph</div>
  <p><script>var x = 1;</script>Visible text</p>
</body>
</html>`)

	page, err := NewExtractor(ExtractParagraphs).Extract(body, "text/html; charset=utf-8", mustURL(t, "https://rbi.org.in"))
	require.NoError(t, err)

	assert.Equal(t, "RBI - Circulars", page.Title)
	assert.Equal(t,
		"Master Direction on KYC\nIssued on\n01 Jan 2024\n, effective immediately.\nVisible text",
		page.Text)
}

func TestExtract_NoTitleNoParagraphs(t *testing.T) {
	page, err := NewExtractor(ExtractParagraphs).Extract([]byte(`<html><body><div>hi</div></body></html>`), "text/html", nil)
	require.NoError(t, err)

	assert.Empty(t, page.Title)
	assert.Empty(t, page.Text)
}

func TestExtract_NeverProducesBlankLines(t *testing.T) {
	body := []byte("<p>one</p><p>\n\t</p><p> </p><p>two<br>  <br>three</p>")

	page, err := NewExtractor(ExtractParagraphs).Extract(body, "text/html", nil)
	require.NoError(t, err)

	assert.Equal(t, "one\ntwo\nthree", page.Text)
	assert.NotContains(t, page.Text, "\n\n")
}

func TestExtract_DecodesDeclaredCharset(t *testing.T) {
	// "Café" in ISO-8859-1.
	body := []byte("<html><head><title>Caf\xe9</title></head><body><p>Caf\xe9 news</p></body></html>")

	page, err := NewExtractor(ExtractParagraphs).Extract(body, "text/html; charset=iso-8859-1", nil)
	require.NoError(t, err)

	assert.Equal(t, "Café", page.Title)
	assert.Equal(t, "Café news", page.Text)
}

func TestExtract_ReadabilityModeKeepsTitleFromTitleTag(t *testing.T) {
	body := []byte(`<html><head><title>SEBI Press Release</title></head><body>
<header><p>Skip to main content</p></header>
<article>
  <h1>SEBI issues new framework</h1>
  <p>The Securities and Exchange Board of India today issued a framework for the regulation of intermediaries, covering registration and conduct.</p>
  <p>The framework takes effect from the next quarter and applies to all registered entities operating in the securities market.</p>
  <p>Market participants are advised to review the requirements and to update their internal processes before the effective date.</p>
</article>
</body></html>`)

	page, err := NewExtractor(ExtractReadability).Extract(body, "text/html", mustURL(t, "https://sebi.gov.in/press"))
	require.NoError(t, err)

	assert.Equal(t, "SEBI Press Release", page.Title)
	assert.Contains(t, page.Text, "Securities and Exchange Board of India")
	assert.NotContains(t, page.Text, "\n\n")
}

func TestNewExtractor_DefaultsToParagraphs(t *testing.T) {
	assert.Equal(t, ExtractParagraphs, NewExtractor("").mode)
}
