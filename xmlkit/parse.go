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
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
)

var reXMLDecl = regexp.MustCompile(`(?s)<\?xml.*?\?>`)

// Parse builds an element tree from a single well-formed XML document.
func Parse(src string) (*Element, error) {
	return parse(src, true)
}

// ParseRecover builds an element tree from XML which may contain the
// defects common in vendor log exports: missing end tags (implied
// closed) and unescaped entities. It cannot fix arbitrary garbage.
func ParseRecover(src string) (*Element, error) {
	return parse(src, false)
}

func parse(src string, strict bool) (*Element, error) {
	src = Sanitize(src)
	dec := xml.NewDecoder(strings.NewReader(src))
	dec.Strict = strict
	if !strict {
		dec.Entity = xml.HTMLEntity
	}
	var root *Element
	var stack []*Element
	for {
		tok, err := dec.Token()
		if tok == nil {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse XML: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			elm := &Element{Name: tagName(t.Name)}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				elm.Attrs = append(elm.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("failed to parse XML: multiple root elements")
				}
				root = elm

			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, elm)
			}
			stack = append(stack, elm)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				cur := stack[len(stack)-1]
				cur.Text += string(t)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("failed to parse XML: no root element")
	}
	return root, nil
}

// tagName flattens a namespaced name into the local part. POS exports
// mix namespaced and plain schemas; lookups work on local names only.
func tagName(n xml.Name) string {
	return n.Local
}

// Sanitize replaces invalid UTF-8 byte sequences with the Unicode
// replacement character, mirroring a replacement-mode decode of the
// source file.
func Sanitize(src string) string {
	return strings.ToValidUTF8(src, "�")
}

// CleanDeclarations removes all XML declarations from the content and
// re-attaches the first one (if any) at the top. Vendor exports append
// to one file across process restarts, leaving declarations scattered
// mid-document.
func CleanDeclarations(src string) string {
	decls := reXMLDecl.FindAllString(src, -1)
	if len(decls) == 0 {
		return src
	}
	cleaned := reXMLDecl.ReplaceAllString(src, "")
	return decls[0] + "\n" + cleaned
}

// StripDeclaration drops a leading XML declaration, if present.
func StripDeclaration(src string) string {
	trimmed := strings.TrimSpace(src)
	if strings.HasPrefix(trimmed, "<?xml") {
		if idx := strings.Index(trimmed, "?>"); idx != -1 {
			return strings.TrimSpace(trimmed[idx+2:])
		}
	}
	return trimmed
}
