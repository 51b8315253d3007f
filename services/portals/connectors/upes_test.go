package connectors

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func submissionForm(t *testing.T, inner string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		"<html><body><form class='submission'>" +
			"<input type='file' name='submission'/>" + inner +
			"<button type='submit' id='submit-assignment'>Submit</button>" +
			"</form></body></html>",
	))
	require.NoError(t, err)
	return doc
}

func TestCommentFieldChainMatchesTextarea(t *testing.T) {
	doc := submissionForm(t, "<textarea name='submission_comments'></textarea>")

	_, candidate, ok := upesCommentField.MatchDoc(doc)
	require.True(t, ok)
	require.Equal(t, "textarea[name*='comment']", candidate)
}

func TestCommentFieldChainFallsBackToInput(t *testing.T) {
	doc := submissionForm(t, "<input type='text' name='comment_text'/>")

	_, candidate, ok := upesCommentField.MatchDoc(doc)
	require.True(t, ok)
	require.Equal(t, "input[name*='comment']", candidate)
}

func TestCommentFieldChainExhaustedWhenFormHasNone(t *testing.T) {
	doc := submissionForm(t, "")

	_, _, ok := upesCommentField.MatchDoc(doc)
	require.False(t, ok)
}
