package markdown

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
)

func TestSupportedMIMETypes(t *testing.T) {
	normaliser := New()
	assert.ElementsMatch(t, []string{"text/markdown", "text/x-markdown"}, normaliser.SupportedMIMETypes())
	assert.Equal(t, 50, normaliser.Priority())
}

func TestNormalise_NilDocument(t *testing.T) {
	result, err := New().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, result)
}

func TestNormalise_Success(t *testing.T) {
	raw := &domain.RawDocument{
		SourceURL: "https://obec.example/aktuality/svoz.md",
		MIMEType:  "text/markdown",
		Content: []byte("# Svoz odpadu\n\nSvoz probíhá **každé** úterý.\n\n" +
			"Více na [webu](https://example.com).\n\n![logo](logo.png)\n"),
		Metadata: map[string]any{"section": "aktuality"},
	}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "Svoz odpadu", result.Title)
	assert.Equal(t, domain.DocumentTypeWebpage, result.Type)
	assert.Equal(t, "Svoz odpadu\n\nSvoz probíhá každé úterý.\n\nVíce na webu.", result.Text)
	assert.Equal(t, "markdown", result.Metadata["format"])
	assert.Equal(t, "aktuality", result.Metadata["section"])
	assert.NotContains(t, result.Text, "https://example.com")
	assert.NotContains(t, result.Text, "logo")
}

func TestNormalise_TitleExtraction(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		url      string
		expected string
	}{
		{"first h1", "Intro\n\n# Hlavní titulek\n\n# Druhý", "/a.md", "Hlavní titulek"},
		{"h2 is not a title", "## Podnadpis\n\ntext", "/files/uredni_deska.md", "uredni deska"},
		{"formatted h1", "# *Rozpočet* 2025", "/a.md", "Rozpočet 2025"},
		{"empty", "", "/path/to/zapis-zastupitelstva.md", "zapis zastupitelstva"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := New().Normalise(context.Background(),
				&domain.RawDocument{SourceURL: tc.url, Content: []byte(tc.content)})
			require.NoError(t, err)
			assert.Equal(t, tc.expected, result.Title)
		})
	}
}

func TestNormalise_Structure(t *testing.T) {
	content := "# Úřad\n\n" +
		"- Po: 8-17\n- St: 8-17\n\n" +
		"| Den | Hodiny |\n|---|---|\n| Po | 8-17 |\n\n" +
		"```\nkód\n```\n\n" +
		"> citace\n\n" +
		"<div>html</div>\n"

	result, err := New().Normalise(context.Background(),
		&domain.RawDocument{SourceURL: "/x.md", Content: []byte(content)})
	require.NoError(t, err)

	assert.Contains(t, result.Text, "- Po: 8-17\n- St: 8-17")
	assert.Contains(t, result.Text, "Den | Hodiny |")
	assert.Contains(t, result.Text, "Po | 8-17 |")
	assert.Contains(t, result.Text, "kód")
	assert.Contains(t, result.Text, "citace")
	assert.NotContains(t, result.Text, "<div>")
}

func TestInterfaceCompliance(t *testing.T) {
	var _ driven.Normaliser = (*Normaliser)(nil)
}
