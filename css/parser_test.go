package css_test

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap"

	"fmskin/css"
)

func TestParser_VariablesAndRules(t *testing.T) {
	p := css.NewParser(zap.NewNop())

	input := []byte(`
:root {
    --primary: #1E90FF;
    --gap:   8px;
}

.green, .title  .label {
    color: rgb(0, 255, 0);
    padding: 2px 4px;
}
`)
	sheet := p.Parse(input, "test.css")

	vars := sheet.Variables()
	if len(vars) != 2 {
		t.Fatalf("expected 2 variables, got %d: %v", len(vars), vars)
	}
	if vars[0].Property != "--primary" || vars[0].Value != "#1E90FF" {
		t.Errorf("unexpected first variable %+v", vars[0])
	}
	if vars[1].Property != "--gap" || vars[1].Value != "8px" {
		t.Errorf("unexpected second variable %+v", vars[1])
	}

	if len(sheet.Rules) != 3 {
		t.Fatalf("expected 3 rules (grouped selector split), got %d", len(sheet.Rules))
	}
	green := sheet.RulesBySelector(".green")
	if len(green) != 1 {
		t.Fatalf("expected .green rule, got %v", green)
	}
	if len(green[0].Declarations) != 2 {
		t.Fatalf("expected 2 declarations, got %v", green[0].Declarations)
	}
	if d := green[0].Declarations[0]; d.Property != "color" || d.Value != "rgb(0, 255, 0)" {
		t.Errorf("unexpected declaration %+v", d)
	}
	if d := green[0].Declarations[1]; d.Property != "padding" || d.Value != "2px 4px" {
		t.Errorf("unexpected declaration %+v", d)
	}
	if len(sheet.RulesBySelector(".title .label")) != 1 {
		t.Error("descendant selector whitespace was not normalized")
	}
}

func TestParser_Important(t *testing.T) {
	p := css.NewParser(nil)
	sheet := p.Parse([]byte(`.a { font-size: 12px !important; }`))
	if len(sheet.Rules) != 1 || len(sheet.Rules[0].Declarations) != 1 {
		t.Fatalf("unexpected rules %v", sheet.Rules)
	}
	if v := sheet.Rules[0].Declarations[0].Value; v != "12px" {
		t.Errorf("expected !important to be stripped, got %q", v)
	}
}

func TestParser_URLValue(t *testing.T) {
	p := css.NewParser(zap.NewNop())
	sheet := p.Parse([]byte(`.a { -unity-font: url('fonts/Inter.ttf'); }`))
	if len(sheet.Rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(sheet.Rules))
	}
	if v := sheet.Rules[0].Declarations[0].Value; !strings.Contains(v, "fonts/Inter.ttf") {
		t.Errorf("unexpected url value %q", v)
	}
}

func TestParser_CommaSeparatedValues(t *testing.T) {
	p := css.NewParser(zap.NewNop())
	sheet := p.Parse([]byte(`.a { color: var(--accent,#fff); border-color: rgb(1 , 2,3); }`))
	if len(sheet.Rules) != 1 || len(sheet.Rules[0].Declarations) != 2 {
		t.Fatalf("unexpected rules %v", sheet.Rules)
	}
	tests := []struct{ property, want string }{
		{"color", "var(--accent, #fff)"},
		{"border-color", "rgb(1, 2, 3)"},
	}
	for i, tt := range tests {
		if d := sheet.Rules[0].Declarations[i]; d.Property != tt.property || d.Value != tt.want {
			t.Errorf("declaration %d = %+v, want %s: %s", i, d, tt.property, tt.want)
		}
	}
}

func TestParser_AtRulesSkipped(t *testing.T) {
	p := css.NewParser(zap.NewNop())
	sheet := p.Parse([]byte(`
@import "other.css";
@media screen { .x { color: red; } }
.y { color: blue; }
`))
	if len(sheet.Rules) != 1 || sheet.Rules[0].Selector != ".y" {
		t.Fatalf("expected only .y rule, got %v", sheet.Rules)
	}
	if len(sheet.Warnings) < 2 {
		t.Errorf("expected warnings for @-rules, got %v", sheet.Warnings)
	}
}

func TestParser_EmptyInput(t *testing.T) {
	p := css.NewParser(zap.NewNop())
	sheet := p.Parse(nil)
	if len(sheet.Rules) != 0 || len(sheet.Variables()) != 0 {
		t.Errorf("expected empty stylesheet, got %+v", sheet)
	}
}

func TestStylesheet_WriteTo(t *testing.T) {
	p := css.NewParser(zap.NewNop())
	sheet := p.Parse([]byte(`:root { --a: #fff; } .b { color: var(--a); }`))

	var buf bytes.Buffer
	n, err := sheet.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo returned error: %v", err)
	}
	if int(n) != buf.Len() {
		t.Errorf("WriteTo returned %d but wrote %d bytes", n, buf.Len())
	}
	want := ":root {\n  --a: #fff;\n}\n\n.b {\n  color: var(--a);\n}\n"
	if buf.String() != want {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
	if sheet.String() != want {
		t.Error("String does not match WriteTo output")
	}
}
