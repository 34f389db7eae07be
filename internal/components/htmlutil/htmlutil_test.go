package htmlutil

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<table><tr><td id="a">Connected</td><td id="b"><font color="red">Disconnected</font></td><td id="c">12 <b>K</b> tail</td></tr></table>`,
	))
	require.NoError(t, err)

	require.Equal(t, "Connected", OwnText(doc.Find("#a")))
	require.Equal(t, "", OwnText(doc.Find("#b")))
	require.Equal(t, "12 ", OwnText(doc.Find("#c")))

	require.Equal(t, "Disconnected", GetText(doc.Find("#b").Nodes[0]))
	require.Equal(t, "12 K tail", GetText(doc.Find("#c").Nodes[0]))
}

func TestCleanText(t *testing.T) {
	require.Equal(t, "IN:DEMO:CS:SB:TEMP", CleanText("\n  IN:DEMO:CS:SB:TEMP\t "))
	require.Equal(t, "a b", CleanText("a \u0000\t\n b"))
	require.Equal(t, "", CleanText("   "))
}
