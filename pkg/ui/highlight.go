package ui

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/charmbracelet/lipgloss"
)

// HighlightJSON colors a JSON document with the palette. Input the lexer
// cannot tokenize is returned unchanged.
func HighlightJSON(doc string) string {
	lexer := lexers.Get("json")
	if lexer == nil {
		return doc
	}
	lexer = chroma.Coalesce(lexer)

	iter, err := lexer.Tokenise(nil, doc)
	if err != nil {
		return doc
	}

	var b strings.Builder
	for token := iter(); token != chroma.EOF; token = iter() {
		if token.Value == "" {
			continue
		}
		style, ok := styleForToken(token.Type)
		if !ok {
			b.WriteString(token.Value)
			continue
		}
		// Style line by line so newlines stay outside escape sequences.
		lines := strings.Split(token.Value, "\n")
		for i, line := range lines {
			if line != "" {
				b.WriteString(style.Render(line))
			}
			if i < len(lines)-1 {
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

func styleForToken(ttype chroma.TokenType) (lipgloss.Style, bool) {
	switch {
	case ttype == chroma.Error:
		return errorStyle, true
	case ttype == chroma.NameTag:
		return frameStyle, true
	case ttype.InCategory(chroma.LiteralString):
		return urlStyle, true
	case ttype.InCategory(chroma.LiteralNumber):
		return lipgloss.NewStyle().Foreground(butterYellow), true
	case ttype.InCategory(chroma.Keyword):
		return titleStyle, true
	case ttype.InCategory(chroma.Punctuation):
		return subtleStyle, true
	}
	return lipgloss.Style{}, false
}
