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
)

// SplitConcatenated splits text containing several XML documents
// concatenated without a common root into per-document chunks.
// Each chunk runs from the first '<' after the previous chunk to the
// '>' that returns the element depth to zero. Comments, processing
// instructions, DOCTYPE and CDATA sections do not affect the depth.
// A truncated trailing document is returned as-is (the caller's parse
// attempt decides its fate); leading non-markup garbage stops the scan.
func SplitConcatenated(src string) []string {
	var chunks []string
	i, n := 0, len(src)
	for i < n {
		for i < n && isSpace(src[i]) {
			i++
		}
		if i >= n || src[i] != '<' {
			break
		}
		start := i
		end := scanChunk(src, i)
		chunk := strings.TrimSpace(src[start:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end <= i {
			break
		}
		i = end
	}
	return chunks
}

// scanChunk walks src from pos (which points at '<') and returns the
// index one past the end of the document starting there.
func scanChunk(src string, pos int) int {
	depth := 0
	opened := false
	j, n := pos, len(src)
	for j < n {
		if src[j] != '<' {
			j++
			continue
		}
		rest := src[j:]
		switch {
		case strings.HasPrefix(rest, "<!--"):
			idx := strings.Index(rest[4:], "-->")
			if idx == -1 {
				return n
			}
			j += 4 + idx + 3
		case strings.HasPrefix(rest, "<![CDATA["):
			idx := strings.Index(rest[9:], "]]>")
			if idx == -1 {
				return n
			}
			j += 9 + idx + 3
		case strings.HasPrefix(rest, "<?"):
			idx := strings.Index(rest[2:], "?>")
			if idx == -1 {
				return n
			}
			j += 2 + idx + 2
		case strings.HasPrefix(rest, "<!"):
			idx := strings.IndexByte(rest, '>')
			if idx == -1 {
				return n
			}
			j += idx + 1
		default:
			gt := strings.IndexByte(rest, '>')
			if gt == -1 {
				return n
			}
			closing := strings.HasPrefix(rest, "</")
			selfClosing := !closing && gt >= 1 && rest[gt-1] == '/'
			j += gt + 1
			if closing {
				depth--

			} else if !selfClosing {
				depth++
				opened = true

			} else {
				opened = true
			}
			if opened && depth <= 0 {
				return j
			}
		}
	}
	return n
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
