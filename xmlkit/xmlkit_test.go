// Copyright 2025 Petr Havelka <petr.havelka.dev@gmail.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package xmlkit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBasicTree(t *testing.T) {
	root, err := Parse(`<Root a="1"><Child b="2">hello</Child><Child b="3" /></Root>`)
	assert.NoError(t, err)
	assert.Equal(t, "Root", root.Name)
	assert.Equal(t, "1", root.Attr("a"))
	children := root.ChildrenByName("Child")
	assert.Len(t, children, 2)
	assert.Equal(t, "hello", children[0].Text)
	assert.Equal(t, "3", children[1].Attr("b"))
}

func TestParseRejectsBrokenNesting(t *testing.T) {
	_, err := Parse(`<Root><Child></Root>`)
	assert.Error(t, err)
}

func TestParseRecoverImpliesEndTags(t *testing.T) {
	root, err := ParseRecover(`<Logs><LPE Method="Init"><Info v="1"/></Logs>`)
	assert.NoError(t, err)
	assert.NotNil(t, root.Find("LPE"))
	assert.NotNil(t, root.Find("Info"))
}

func TestParseCDATAIsText(t *testing.T) {
	root, err := Parse(`<LPE Method="AddItem"><![CDATA[<ItemInfo PLU="42" />]]></LPE>`)
	assert.NoError(t, err)
	assert.Equal(t, `<ItemInfo PLU="42" />`, root.Text)
}

func TestFindDepthFirst(t *testing.T) {
	root, _ := Parse(`<A><B><C x="deep"/></B><C x="shallow"/></A>`)
	assert.Equal(t, "deep", root.Find("C").Attr("x"))
	assert.Len(t, root.FindAll("C"), 2)
}

func TestInnerText(t *testing.T) {
	root, _ := Parse(`<A>one<B>two</B>three</A>`)
	txt := root.InnerText()
	assert.Contains(t, txt, "one")
	assert.Contains(t, txt, "two")
	assert.Contains(t, txt, "three")
}

func TestSerializeAttrForm(t *testing.T) {
	root, _ := Parse(`<Customer TransID="0042" CardID="989"><Member FirstName="Jana"/></Customer>`)
	out := root.String()
	assert.Contains(t, out, `TransID="0042"`)
	assert.Contains(t, out, `CardID="989"`)
	assert.Contains(t, out, `FirstName="Jana"`)
	reparsed, err := Parse(out)
	assert.NoError(t, err)
	assert.Equal(t, "0042", reparsed.Attr("TransID"))
}

func TestCleanDeclarationsKeepsFirst(t *testing.T) {
	src := "<?xml version=\"1.0\"?>\n<A/>\n<?xml version=\"1.0\"?>\n<B/>"
	out := CleanDeclarations(src)
	assert.Equal(t, 1, strings.Count(out, "<?xml"))
	assert.True(t, strings.HasPrefix(out, "<?xml"))
	assert.Contains(t, out, "<A/>")
	assert.Contains(t, out, "<B/>")
}

func TestStripDeclaration(t *testing.T) {
	assert.Equal(t, "<A/>", StripDeclaration("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n<A/>"))
	assert.Equal(t, "<A/>", StripDeclaration("<A/>"))
}

func TestSplitConcatenatedTwoDocuments(t *testing.T) {
	src := "<Root><LPE Method=\"Init\"/></Root>\n<Root><LPE Method=\"AddItem\"/></Root>"
	chunks := SplitConcatenated(src)
	assert.Len(t, chunks, 2)
	for _, ch := range chunks {
		_, err := Parse(ch)
		assert.NoError(t, err)
	}
	joined := strings.Join(chunks, "\n")
	assert.Equal(t, src, joined)
}

func TestSplitConcatenatedWithDeclarations(t *testing.T) {
	src := "<?xml version=\"1.0\"?><A><B/></A><?xml version=\"1.0\"?><A><B/></A>"
	chunks := SplitConcatenated(src)
	assert.Len(t, chunks, 2)
	assert.True(t, strings.HasPrefix(chunks[1], "<?xml"))
}

func TestSplitConcatenatedSelfClosingRoot(t *testing.T) {
	chunks := SplitConcatenated("<A/><B/>")
	assert.Equal(t, []string{"<A/>", "<B/>"}, chunks)
}

func TestSplitConcatenatedNestedSameName(t *testing.T) {
	src := "<A><A><B>x</B></A></A><A/>"
	chunks := SplitConcatenated(src)
	assert.Len(t, chunks, 2)
	assert.Equal(t, "<A><A><B>x</B></A></A>", chunks[0])
}

func TestSplitConcatenatedTruncatedTail(t *testing.T) {
	src := "<A><B/></A><A><B>"
	chunks := SplitConcatenated(src)
	assert.Len(t, chunks, 2)
	assert.Equal(t, "<A><B/></A>", chunks[0])
	assert.Equal(t, "<A><B>", chunks[1])
}

func TestSplitConcatenatedIgnoresCDATABrackets(t *testing.T) {
	src := "<A><![CDATA[</A><broken>]]></A><B/>"
	chunks := SplitConcatenated(src)
	assert.Len(t, chunks, 2)
	assert.Equal(t, "<B/>", chunks[1])
}

func TestSplitConcatenatedStopsOnGarbage(t *testing.T) {
	chunks := SplitConcatenated("plain text, no markup")
	assert.Empty(t, chunks)
}

func TestSanitizeInvalidUTF8(t *testing.T) {
	out := Sanitize("ok\xffend")
	assert.True(t, strings.HasPrefix(out, "ok"))
	assert.True(t, strings.HasSuffix(out, "end"))
	assert.Contains(t, out, "�")
}
