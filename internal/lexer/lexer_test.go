package lexer

import (
	"testing"

	"github.com/aql-lang/aql/internal/token"
)

func TestLexer_BasicTokens(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []token.Type
	}{
		{
			name:     "empty input",
			input:    "",
			expected: []token.Type{token.EOF},
		},
		{
			name:  "query keywords",
			input: "select from where prewhere group by having order limit offset distinct as",
			expected: []token.Type{
				token.SELECT, token.FROM, token.WHERE, token.PREWHERE, token.GROUP, token.BY,
				token.HAVING, token.ORDER, token.LIMIT, token.OFFSET, token.DISTINCT, token.AS,
				token.EOF,
			},
		},
		{
			name:  "join keywords",
			input: "join inner left outer on",
			expected: []token.Type{
				token.JOIN, token.INNER, token.LEFT, token.OUTER, token.ON, token.EOF,
			},
		},
		{
			name:  "operators",
			input: "== != <> < > <= >= = .",
			expected: []token.Type{
				token.EQ, token.NEQ, token.NEQ, token.LT, token.GT, token.LTE, token.GTE,
				token.ASSIGN, token.DOT, token.EOF,
			},
		},
		{
			name:  "delimiters",
			input: "{ } ( ) , ;",
			expected: []token.Type{
				token.LBRACE, token.RBRACE, token.LPAREN, token.RPAREN, token.COMMA, token.SEMICOLON, token.EOF,
			},
		},
		{
			name:  "arithmetic",
			input: "+ - * / %",
			expected: []token.Type{
				token.PLUS, token.MINUS, token.STAR, token.SLASH, token.PERCENT, token.EOF,
			},
		},
		{
			name:  "logic keywords",
			input: "and or not in is null true false",
			expected: []token.Type{
				token.AND, token.OR, token.NOT, token.IN, token.IS, token.NULL, token.TRUE, token.FALSE, token.EOF,
			},
		},
		{
			name:  "keywords are case-insensitive",
			input: "SELECT From WHERE",
			expected: []token.Type{
				token.SELECT, token.FROM, token.WHERE, token.EOF,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, diags := Tokenize(tt.input)

			if diags.HasErrors() {
				t.Errorf("unexpected errors: %v", diags.Errors())
			}

			if len(tokens) != len(tt.expected) {
				t.Errorf("expected %d tokens, got %d: %v", len(tt.expected), len(tokens), tokens)
				return
			}

			for i, expected := range tt.expected {
				if tokens[i].Type != expected {
					t.Errorf("token[%d]: expected %v, got %v", i, expected, tokens[i].Type)
				}
			}
		})
	}
}

func TestLexer_Identifiers(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"events", "events"},
		{"person_id", "person_id"},
		{"camelCase", "camelCase"},
		{"_private", "_private"},
		{"a123", "a123"},
		{"$screen_width", "$screen_width"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens, _ := Tokenize(tt.input)

			if len(tokens) < 2 {
				t.Fatal("expected at least 2 tokens (ident + EOF)")
			}

			if tokens[0].Type != token.IDENT {
				t.Errorf("expected IDENT, got %v", tokens[0].Type)
			}

			if tokens[0].Literal != tt.expected {
				t.Errorf("expected literal %q, got %q", tt.expected, tokens[0].Literal)
			}
		})
	}
}

func TestLexer_Numbers(t *testing.T) {
	tests := []struct {
		input        string
		expectedType token.Type
		literal      string
	}{
		{"123", token.INT, "123"},
		{"0", token.INT, "0"},
		{"999999", token.INT, "999999"},
		{"3.14", token.FLOAT, "3.14"},
		{"0.5", token.FLOAT, "0.5"},
		{"100.0", token.FLOAT, "100.0"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens, diags := Tokenize(tt.input)

			if diags.HasErrors() {
				t.Errorf("unexpected errors: %v", diags.Errors())
			}

			if tokens[0].Type != tt.expectedType {
				t.Errorf("expected %v, got %v", tt.expectedType, tokens[0].Type)
			}

			if tokens[0].Literal != tt.literal {
				t.Errorf("expected literal %q, got %q", tt.literal, tokens[0].Literal)
			}
		})
	}
}

func TestLexer_Strings(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`"hello"`, "hello"},
		{`'hello'`, "hello"},
		{`"hello world"`, "hello world"},
		{`""`, ""},
		{`"escaped \"quote\""`, `escaped "quote"`},
		{`"newline\nhere"`, "newline\nhere"},
		{`"tab\there"`, "tab\there"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens, diags := Tokenize(tt.input)

			if diags.HasErrors() {
				t.Errorf("unexpected errors: %v", diags.Errors())
			}

			if tokens[0].Type != token.STRING {
				t.Errorf("expected STRING, got %v", tokens[0].Type)
			}

			if tokens[0].Literal != tt.expected {
				t.Errorf("expected literal %q, got %q", tt.expected, tokens[0].Literal)
			}
		})
	}
}

func TestLexer_LineComment(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		tokenCount int // non-comment tokens, including EOF
	}{
		{
			name:       "comment only",
			input:      "-- this is a comment",
			tokenCount: 1,
		},
		{
			name:       "code with trailing comment",
			input:      "select -- comment\nfrom",
			tokenCount: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, _ := Tokenize(tt.input)

			if len(tokens) != tt.tokenCount {
				t.Errorf("expected %d tokens, got %d: %v", tt.tokenCount, len(tokens), tokens)
			}
		})
	}
}

func TestLexer_DottedFieldChain(t *testing.T) {
	tokens, diags := Tokenize("events.pdi.person.properties.$email")
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Errors())
	}

	expected := []token.Type{
		token.IDENT, token.DOT, token.IDENT, token.DOT, token.IDENT, token.DOT,
		token.IDENT, token.DOT, token.IDENT, token.EOF,
	}
	if len(tokens) != len(expected) {
		t.Fatalf("expected %d tokens, got %d: %v", len(expected), len(tokens), tokens)
	}
	for i, want := range expected {
		if tokens[i].Type != want {
			t.Errorf("token[%d]: expected %v, got %v", i, want, tokens[i].Type)
		}
	}
}

func TestLexer_Placeholder(t *testing.T) {
	tokens, diags := Tokenize("where x = {value}")
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Errors())
	}

	expected := []token.Type{
		token.WHERE, token.IDENT, token.ASSIGN, token.LBRACE, token.IDENT, token.RBRACE, token.EOF,
	}
	if len(tokens) != len(expected) {
		t.Fatalf("expected %d tokens, got %d: %v", len(expected), len(tokens), tokens)
	}
	for i, want := range expected {
		if tokens[i].Type != want {
			t.Errorf("token[%d]: expected %v, got %v", i, want, tokens[i].Type)
		}
	}
}

func TestLexer_Errors(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expectError bool
	}{
		{
			name:        "unterminated string",
			input:       `"hello`,
			expectError: true,
		},
		{
			name:        "invalid character",
			input:       "select @ from events",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, diags := Tokenize(tt.input)

			if tt.expectError && !diags.HasErrors() {
				t.Error("expected error, got none")
			}

			if !tt.expectError && diags.HasErrors() {
				t.Errorf("unexpected error: %v", diags.Errors())
			}
		})
	}
}

func TestLexer_Positions(t *testing.T) {
	input := "select\n  event\nfrom events"

	tokens, _ := Tokenize(input)

	if tokens[0].Pos.Line != 1 {
		t.Errorf("token 0: expected line 1, got line %d", tokens[0].Pos.Line)
	}

	for _, tok := range tokens {
		if tok.Literal == "event" {
			if tok.Pos.Line != 2 {
				t.Errorf("'event' token: expected line 2, got line %d", tok.Pos.Line)
			}
			break
		}
	}
}
