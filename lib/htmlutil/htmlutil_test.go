package htmlutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestGetText(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(
		`<ul><li>one<a href="/x">two</a></li><li>three</li></ul>`,
	))
	require.NoError(t, err)
	require.Equal(t, "onetwothree", GetText(doc))
}

func TestCleanText(t *testing.T) {
	require.Equal(t, "The Thing", CleanText("  The \n\n Thing \t"))
	require.Equal(t, "Solaris", CleanText("Sol\u200baris"))
	require.Equal(t, "", CleanText(" \n\t "))
}
