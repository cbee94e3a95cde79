// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jobrequest

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// TokenType identifies the kind of a template token understood by the
// runner.
type TokenType int

const (
	TokenString TokenType = iota
	TokenSequence
	TokenMapping
	TokenBasicExpression
	TokenInsertExpression
	TokenBoolean
	TokenNumber
	TokenNull
)

// Script tokens are attributed to the first file table entry.
const (
	tokenFile = 1
	tokenLine = 0
	tokenCol  = 0
)

var placeholderPattern = regexp.MustCompile(`\$\{\{(.*?)\}\}`)

// Token is a template token. A string token carries Lit, an expression
// token carries Expr.
type Token struct {
	File int
	Line int
	Col  int
	Type TokenType
	Lit  string
	Expr string
}

// MarshalJSON emits lit or expr depending on the token type.
func (t Token) MarshalJSON() ([]byte, error) {
	type position struct {
		File int       `json:"file"`
		Line int       `json:"line"`
		Col  int       `json:"col"`
		Type TokenType `json:"type"`
	}
	pos := position{File: t.File, Line: t.Line, Col: t.Col, Type: t.Type}
	if t.Type == TokenBasicExpression {
		return json.Marshal(struct {
			position
			Expr string `json:"expr"`
		}{pos, t.Expr})
	}
	return json.Marshal(struct {
		position
		Lit string `json:"lit"`
	}{pos, t.Lit})
}

// UnmarshalJSON reads a token written by MarshalJSON.
func (t *Token) UnmarshalJSON(data []byte) error {
	var raw struct {
		File int       `json:"file"`
		Line int       `json:"line"`
		Col  int       `json:"col"`
		Type TokenType `json:"type"`
		Lit  string    `json:"lit"`
		Expr string    `json:"expr"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = Token(raw)
	return nil
}

// ScriptToken builds the token for a step script. A script without any
// ${{ }} placeholder is sent as a literal. Otherwise every placeholder
// becomes a positional marker of a format() expression whose arguments are
// the trimmed placeholder expressions, in order of occurrence.
func ScriptToken(script string) Token {
	tok := Token{File: tokenFile, Line: tokenLine, Col: tokenCol}

	matches := placeholderPattern.FindAllStringSubmatchIndex(script, -1)
	if len(matches) == 0 {
		tok.Type = TokenString
		tok.Lit = script
		return tok
	}

	var (
		template strings.Builder
		args     []string
		last     int
	)
	for _, m := range matches {
		template.WriteString(escapeFormat(script[last:m[0]]))
		fmt.Fprintf(&template, "{%d}", len(args))
		args = append(args, strings.TrimSpace(script[m[2]:m[3]]))
		last = m[1]
	}
	template.WriteString(escapeFormat(script[last:]))

	tok.Type = TokenBasicExpression
	tok.Expr = fmt.Sprintf("format('%s', %s)", template.String(), strings.Join(args, ", "))
	return tok
}

var formatEscaper = strings.NewReplacer("'", "''", "{", "{{", "}", "}}")

// escapeFormat escapes literal text for a single-quoted format() template.
func escapeFormat(s string) string {
	return formatEscaper.Replace(s)
}
