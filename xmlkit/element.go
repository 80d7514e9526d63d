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

// Package xmlkit provides a small in-memory XML element tree plus the
// tolerant parsing helpers POS log files need: a strict parse, a
// recovering parse for vendor exports with broken nesting, XML
// declaration cleanup and a scanner splitting files that concatenate
// multiple documents without a shared root.
package xmlkit

import (
	"strings"
)

// Attr is a single element attribute. Order of attributes is preserved
// as found in the source document.
type Attr struct {
	Name  string
	Value string
}

// Element is one node of the parsed tree. Text accumulates all
// character data (including CDATA) directly inside the element.
type Element struct {
	Name     string
	Attrs    []Attr
	Children []*Element
	Text     string
}

// Attr returns the value of the named attribute or "" when absent.
func (e *Element) Attr(name string) string {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// AttrDefault returns the named attribute value or dflt when the
// attribute is absent or empty.
func (e *Element) AttrDefault(name, dflt string) string {
	if v := e.Attr(name); v != "" {
		return v
	}
	return dflt
}

// AttrMap returns the element attributes as a plain map.
func (e *Element) AttrMap() map[string]string {
	ans := make(map[string]string, len(e.Attrs))
	for _, a := range e.Attrs {
		ans[a.Name] = a.Value
	}
	return ans
}

// ChildrenByName returns the direct children with the given tag name.
func (e *Element) ChildrenByName(name string) []*Element {
	var ans []*Element
	for _, ch := range e.Children {
		if ch.Name == name {
			ans = append(ans, ch)
		}
	}
	return ans
}

// Find performs a depth-first search for the first descendant (or self)
// with the given tag name.
func (e *Element) Find(name string) *Element {
	if e.Name == name {
		return e
	}
	for _, ch := range e.Children {
		if v := ch.Find(name); v != nil {
			return v
		}
	}
	return nil
}

// FindAll collects all descendants (or self) with the given tag name
// in document order.
func (e *Element) FindAll(name string) []*Element {
	var ans []*Element
	e.walk(func(node *Element) {
		if node.Name == name {
			ans = append(ans, node)
		}
	})
	return ans
}

// FindText returns the trimmed text of the first descendant with the
// given tag name, or dflt when no such element exists.
func (e *Element) FindText(name, dflt string) string {
	if v := e.Find(name); v != nil {
		return strings.TrimSpace(v.Text)
	}
	return dflt
}

// InnerText concatenates the character data of the element and all of
// its descendants in document order.
func (e *Element) InnerText() string {
	var sb strings.Builder
	e.walk(func(node *Element) {
		sb.WriteString(node.Text)
	})
	return sb.String()
}

func (e *Element) walk(fn func(node *Element)) {
	fn(e)
	for _, ch := range e.Children {
		ch.walk(fn)
	}
}

// String serializes the subtree back into XML text. Attribute values
// are written in the Name="value" form so downstream regex-based
// extraction sees the same shape as the raw log.
func (e *Element) String() string {
	var sb strings.Builder
	e.writeTo(&sb)
	return sb.String()
}

func (e *Element) writeTo(sb *strings.Builder) {
	sb.WriteByte('<')
	sb.WriteString(e.Name)
	for _, a := range e.Attrs {
		sb.WriteByte(' ')
		sb.WriteString(a.Name)
		sb.WriteString(`="`)
		sb.WriteString(escapeAttr(a.Value))
		sb.WriteByte('"')
	}
	if len(e.Children) == 0 && e.Text == "" {
		sb.WriteString(" />")
		return
	}
	sb.WriteByte('>')
	sb.WriteString(escapeText(e.Text))
	for _, ch := range e.Children {
		ch.writeTo(sb)
	}
	sb.WriteString("</")
	sb.WriteString(e.Name)
	sb.WriteByte('>')
}

var attrEscaper = strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `"`, "&quot;")

var textEscaper = strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `>`, "&gt;")

func escapeAttr(v string) string {
	return attrEscaper.Replace(v)
}

func escapeText(v string) string {
	return textEscaper.Replace(v)
}
