package pipeline

import "testing"

func TestEvaluateCondition(t *testing.T) {
	ns := map[string]any{
		"subtitle_found": true,
		"duration_sec":   float64(120),
		"language":       "en",
		"word_count":     int64(0),
		"tags":           collection{kind: "list", items: []any{"news", "auto"}},
	}

	tests := []struct {
		name    string
		expr    string
		want    bool
		wantErr bool
	}{
		{name: "empty is unconditional", expr: "", want: true},
		{name: "bare True literal", expr: "True", want: true},
		{name: "bare False literal", expr: "False", want: false},
		{name: "identifier lookup", expr: "subtitle_found", want: true},
		{name: "word not", expr: "not subtitle_found", want: false},
		{name: "numeric comparison", expr: "duration_sec > 60", want: true},
		{name: "numeric comparison false", expr: "duration_sec < 60", want: false},
		{name: "string equality", expr: `language == "en"`, want: true},
		{name: "string inequality", expr: `language != "en"`, want: false},
		{name: "is comparison", expr: "language is language", want: true},
		{name: "is not comparison", expr: `language is not "fr"`, want: true},
		{name: "word and", expr: "subtitle_found and duration_sec > 60", want: true},
		{name: "word or short circuit", expr: "subtitle_found or nonexistent", want: true},
		{name: "arithmetic", expr: "duration_sec - 20 > 90", want: true},
		{name: "zero is falsy", expr: "word_count", want: false},
		{name: "None is falsy", expr: "not None", want: true},
		{name: "in over list literal", expr: `language in ["en", "fr"]`, want: true},
		{name: "not in over list literal", expr: `language not in ["de", "fr"]`, want: true},
		{name: "in over namespace collection", expr: `"news" in tags`, want: true},
		{name: "in over string", expr: `"e" in language`, want: true},
		{name: "chained comparison", expr: "0 < duration_sec < 200", want: true},
		{name: "ternary true branch", expr: `("long" if duration_sec > 60 else "short") == "long"`, want: true},
		{name: "ternary false branch", expr: `("long" if duration_sec < 60 else "short") == "short"`, want: true},
		{name: "tuple equality", expr: "(1, 2) == (1, 2)", want: true},
		{name: "tuple and list are not equal", expr: "(1, 2) == [1, 2]", want: false},
		{name: "dict truthiness", expr: "{}", want: false},
		{name: "non-empty dict truthy", expr: `{"a": 1}`, want: true},
		{name: "unknown identifier errors", expr: "nonexistent", wantErr: true},
		{name: "call expressions rejected", expr: "len(language)", wantErr: true},
		{name: "assignment rejected", expr: "language = \"fr\"", wantErr: true},
		{name: "index expressions rejected", expr: "language[0]", wantErr: true},
		{name: "malformed syntax rejected", expr: "duration_sec >", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateCondition(tt.expr, ns)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("EvaluateCondition(%q) expected error, got result %v", tt.expr, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("EvaluateCondition(%q) unexpected error: %v", tt.expr, err)
			}
			if got != tt.want {
				t.Fatalf("EvaluateCondition(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluateCondition_SelectorRejected(t *testing.T) {
	_, err := EvaluateCondition("foo.bar", map[string]any{"foo": "x"})
	if err == nil {
		t.Fatal("expected selector expression to be rejected")
	}
}
