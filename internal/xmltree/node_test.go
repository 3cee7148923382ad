package xmltree

import (
	"strings"
	"testing"
)

func TestParseRoundTrip(t *testing.T) {
	in := `<CuttingTool serialNumber="1" assetId="EM233"><CuttingToolLifeCycle><ToolLife type="MINUTES">240</ToolLife><CutterStatus><Status>NEW</Status></CutterStatus></CuttingToolLifeCycle></CuttingTool>`
	n, err := Parse(in)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Name != "CuttingTool" {
		t.Errorf("root = %q, want CuttingTool", n.Name)
	}
	if v, ok := n.Attr("assetId"); !ok || v != "EM233" {
		t.Errorf("assetId = %q, %v", v, ok)
	}
	out := n.String()
	if out != in {
		t.Errorf("round trip mismatch:\n got %s\nwant %s", out, in)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "empty", in: ""},
		{name: "unclosed", in: "<a><b></b>"},
		{name: "text_only", in: "just text"},
		{name: "mismatched", in: "<a></b>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.in); err == nil {
				t.Fatalf("Parse(%q) succeeded, want error", tt.in)
			}
		})
	}
}

func TestUpdateFirst(t *testing.T) {
	n, err := Parse(`<CuttingTool><CuttingToolLifeCycle><ToolLife>240</ToolLife><ToolLife>100</ToolLife></CuttingToolLifeCycle></CuttingTool>`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !n.UpdateFirst("ToolLife", "120") {
		t.Fatal("UpdateFirst returned false")
	}
	// First match only; the second ToolLife keeps its value.
	lc := n.Find("CuttingToolLifeCycle")
	if lc.Children[0].Text != "120" {
		t.Errorf("first ToolLife = %q, want 120", lc.Children[0].Text)
	}
	if lc.Children[1].Text != "100" {
		t.Errorf("second ToolLife = %q, want 100", lc.Children[1].Text)
	}
	if n.UpdateFirst("NoSuchElement", "x") {
		t.Error("UpdateFirst matched a missing element")
	}
}

func TestReplaceElement(t *testing.T) {
	n, err := Parse(`<CuttingTool><CuttingToolLifeCycle><CutterStatus><Status>NEW</Status></CutterStatus></CuttingToolLifeCycle></CuttingTool>`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	frag, err := Parse(`<CutterStatus><Status>USED</Status><Status>AVAILABLE</Status></CutterStatus>`)
	if err != nil {
		t.Fatalf("Parse fragment: %v", err)
	}
	if !n.ReplaceElement(frag) {
		t.Fatal("ReplaceElement returned false")
	}
	cs := n.Find("CutterStatus")
	if len(cs.Children) != 2 {
		t.Fatalf("CutterStatus children = %d, want 2", len(cs.Children))
	}
	if cs.Children[0].Text != "USED" || cs.Children[1].Text != "AVAILABLE" {
		t.Errorf("statuses = %q, %q", cs.Children[0].Text, cs.Children[1].Text)
	}
}

func TestMultiStatusString(t *testing.T) {
	n, err := Parse(`<CutterStatus><Status>NEW</Status></CutterStatus>`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	n.UpdateFirst("Status", "USED,AVAILABLE")
	got := n.MultiStatusString()
	want := `<CutterStatus><Status>USED</Status><Status>AVAILABLE</Status></CutterStatus>`
	if got != want {
		t.Errorf("MultiStatusString = %s, want %s", got, want)
	}
	// Order preserved, plain String leaves the comma form alone.
	if !strings.Contains(n.String(), "USED,AVAILABLE") {
		t.Errorf("String = %s, want comma form intact", n.String())
	}
}

func TestMultiStatusStringLeavesProseAlone(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"prose_with_comma", "carbide, coated", `<Description>carbide, coated</Description>`},
		{"trailing_comma", "USED,", `<Description>USED,</Description>`},
		{"enumeration", "USED,AVAILABLE", `<Description>USED</Description><Description>AVAILABLE</Description>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := &Node{Name: "Description", Text: tc.text}
			if got := n.MultiStatusString(); got != tc.want {
				t.Errorf("MultiStatusString = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	n, _ := Parse(`<a><b>1</b></a>`)
	c := n.Clone()
	c.UpdateFirst("b", "2")
	if n.Find("b").Text != "1" {
		t.Error("Clone shares children with original")
	}
}
