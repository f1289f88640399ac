package nodes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestParseSelfClosingCustomTagIsLeaf(t *testing.T) {
	root, err := Parse(`<include src="a.md"/><p>after</p>`)
	require.NoError(t, err)

	kids := Children(root)
	require.Len(t, kids, 2)
	assert.Equal(t, "include", kids[0].Data)
	assert.Nil(t, kids[0].FirstChild)
	assert.Equal(t, "p", kids[1].Data)
}

func TestParseKeepsCustomNesting(t *testing.T) {
	src := `<p><panel header="x"><div>inner</div></panel></p>`
	root, err := Parse(src)
	require.NoError(t, err)

	assert.Equal(t, `<p><panel header="x"><div>inner</div></panel></p>`, Render(root))
}

func TestParseLowercasesAndToleratesStrayEndTags(t *testing.T) {
	root, err := Parse(`<DIV ID="Seg">hi</span></DIV><br>tail`)
	require.NoError(t, err)

	assert.Equal(t, `<div id="Seg">hi</div><br>tail`, Render(root))
}

func TestParseClosesUnclosedAtEOF(t *testing.T) {
	root, err := Parse(`<div><span>open`)
	require.NoError(t, err)
	assert.Equal(t, `<div><span>open</span></div>`, Render(root))
}

func TestParseSlotAttributes(t *testing.T) {
	root, err := Parse(`<panel><template #header>H</template><div v-slot:footer>F</div><span slot="legacy">L</span></panel>`)
	require.NoError(t, err)
	panel := root.FirstChild

	assert.True(t, HasSlot(panel, "header"))
	assert.True(t, HasSlot(panel, "footer"))
	assert.True(t, HasSlot(panel, "legacy"))
	assert.False(t, HasSlot(panel, "content"))
}

func TestScriptContentStaysRaw(t *testing.T) {
	src := `<script>if (a < b && c) {}</script>`
	root, err := Parse(src)
	require.NoError(t, err)
	assert.Equal(t, src, Render(root))
}

func TestTextIsKeptVerbatim(t *testing.T) {
	src := "<markdown>\n> quote &amp; it's &lt;b&gt;\n</markdown>"
	root, err := Parse(src)
	require.NoError(t, err)

	assert.Equal(t, src, Render(root))
	assert.Equal(t, "\n> quote & it's <b>\n", TextContent(root))
}

func TestAttributeValuesAreEscaped(t *testing.T) {
	root := MustParse(`<a href="x?a=1&amp;b=2" title='say "hi"' download>t</a>`)
	assert.Equal(t, `<a href="x?a=1&amp;b=2" title="say &quot;hi&quot;" download>t</a>`, Render(root))
}

func TestAttributeHelpers(t *testing.T) {
	root := MustParse(`<div class="a" var-x="1" var-y="2" optional></div>`)
	n := root.FirstChild

	assert.True(t, HasAttr(n, "optional"))
	SetAttr(n, "id", "seg")
	assert.Equal(t, "seg", GetAttr(n, "id"))
	DeleteAttrFunc(n, func(k string) bool { return len(k) > 4 && k[:4] == "var-" })
	assert.False(t, HasAttr(n, "var-x"))
	AddClass(n, "b")
	AddClass(n, "a")
	assert.Equal(t, "a b", GetAttr(n, "class"))
}

func TestTreeHelpers(t *testing.T) {
	root := MustParse(`<div><p id="one">x <b>y</b></p><p id="two">z</p></div>`)

	two := FindByID(root, "two")
	require.NotNil(t, two)
	assert.Equal(t, "x y", TextContent(FindByID(root, "one")))

	require.NoError(t, SetInnerHTML(two, "<em>new</em>"))
	assert.Equal(t, `<p id="two"><em>new</em></p>`, Render(two))

	ReplaceWith(two, ErrorNode(true, "broken"))
	assert.Contains(t, Render(root), `<span style="color: red">broken</span>`)

	ps := FindAll(root, func(n *html.Node) bool { return IsElement(n, "p") })
	assert.Len(t, ps, 1)
}

func TestNewSlot(t *testing.T) {
	slot, err := NewSlot("header", "<strong>H</strong>")
	require.NoError(t, err)
	assert.Equal(t, "header", SlotName(slot))
	assert.Equal(t, `<template #header><strong>H</strong></template>`, Render(slot))
}

func TestNormalizeSlots(t *testing.T) {
	root := MustParse(`<panel><div #header>H</div><p slot="footer">F</p><template #body>B</template>text</panel>`)
	panel := root.FirstChild

	require.NoError(t, NormalizeSlots(panel))
	assert.Equal(t,
		`<panel><template #header><div>H</div></template><template #footer><p>F</p></template><template #body>B</template>text</panel>`,
		Render(panel))
	assert.True(t, HasSlot(panel, "footer"))
}

func TestRegistryIsExhaustive(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Validate())

	for tag := TagUnknown + 1; tag < tagCount; tag++ {
		c := r.Contract(tag)
		assert.NotEmpty(t, c.Name, "tag %d", tag)
		if tag != TagHeading {
			assert.Equal(t, tag, r.Lookup(c.Name), c.Name)
		}
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, TagHeading, r.Lookup("h3"))
	assert.Equal(t, TagUnknown, r.Lookup("h7"))
	assert.Equal(t, TagInclude, r.Lookup("include"))
	assert.Equal(t, TagUnknown, r.Lookup("custom-widget"))
	assert.Equal(t, "span", r.Contract(TagMd).Rename)
	assert.Equal(t, "_alt", r.Contract(TagPanel).Slots[0].SlotName())
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()

	require.NoError(t, a.Extend(Contract{Name: "callout", Slots: []SlotRule{{Attribute: "title"}}}))
	require.Error(t, a.Extend(Contract{Name: "panel"}))

	_, ok := a.Extra("callout")
	assert.True(t, ok)
	_, ok = b.Extra("callout")
	assert.False(t, ok)
}
