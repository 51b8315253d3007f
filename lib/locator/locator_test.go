package locator

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const loginForm = `
<html><body>
<form id="signin">
	<input id="student_code" type="text" />
	<input type="password" name="pwd" />
	<button class="login-button">Sign In</button>
</form>
</body></html>`

func parse(t *testing.T, html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestMatchDocFallsThroughToLaterCandidate(t *testing.T) {
	doc := parse(t, loginForm)

	chain := Chain{
		Name: "username field",
		Candidates: []string{
			`input[name="username"]`,
			`input[name="userid"]`,
			`input#student_code`,
		},
	}

	sel, candidate, ok := chain.MatchDoc(doc)
	require.True(t, ok)
	require.Equal(t, `input#student_code`, candidate)
	require.Equal(t, 1, sel.Length())
}

func TestMatchDocPrefersEarlierCandidate(t *testing.T) {
	doc := parse(t, `<input name="username" /><input id="student_code" />`)

	chain := Chain{
		Name: "username field",
		Candidates: []string{
			`input[name="username"]`,
			`input#student_code`,
		},
	}

	_, candidate, ok := chain.MatchDoc(doc)
	require.True(t, ok)
	require.Equal(t, `input[name="username"]`, candidate)
}

func TestMatchDocExhausted(t *testing.T) {
	doc := parse(t, loginForm)

	chain := Chain{
		Name:       "captcha",
		Candidates: []string{`#captcha`, `.captcha-box`},
	}

	_, _, ok := chain.MatchDoc(doc)
	require.False(t, ok)
}

func TestMatchSelectionScopes(t *testing.T) {
	doc := parse(t, `
		<div class="outer"><span class="amount">100</span></div>
		<div class="fees"><span class="amount">2500</span></div>`)

	chain := Chain{Name: "fee amount", Candidates: []string{`.amount`}}

	sel, _, ok := chain.MatchSelection(doc.Find(".fees"))
	require.True(t, ok)
	require.Equal(t, "2500", sel.First().Text())
}
