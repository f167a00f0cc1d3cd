package toolcall

import (
	"encoding/json"
	"testing"
)

func TestExtractSingleCall(t *testing.T) {
	text := `Let me check that. <tool_call name="calculator_compute" expression="47.50 * 0.15" />`
	calls, errs, truncated := Extract(text, 10)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if truncated != 0 {
		t.Fatalf("unexpected truncation: %d", truncated)
	}
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "calculator_compute" {
		t.Errorf("Name = %q", calls[0].Name)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(calls[0].ArgsJSON), &decoded); err != nil {
		t.Fatalf("ArgsJSON not valid JSON: %v (%s)", err, calls[0].ArgsJSON)
	}
	if decoded["expression"] != "47.50 * 0.15" {
		t.Errorf("expression = %v", decoded["expression"])
	}
}

func TestExtractLinearityForKCalls(t *testing.T) {
	text := `<tool_call name="a" value="1" /> then <tool_call name="b" value="2" /> and <tool_call name="c" value="3" />`
	calls, _, _ := Extract(text, 10)
	if len(calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(calls))
	}
	want := []string{"a", "b", "c"}
	for i, w := range want {
		if calls[i].Name != w {
			t.Errorf("call %d = %q, want %q", i, calls[i].Name, w)
		}
	}
}

func TestExtractIgnoresNonSelfClosing(t *testing.T) {
	text := `<tool_call name="a">not self closing</tool_call> <tool_call name="b" value="2" />`
	calls, _, _ := Extract(text, 10)
	if len(calls) != 1 || calls[0].Name != "b" {
		t.Fatalf("expected only the self-closing call, got %+v", calls)
	}
}

func TestExtractMissingNameIsPerCallError(t *testing.T) {
	text := `<tool_call value="1" /> <tool_call name="b" value="2" />`
	calls, errs, _ := Extract(text, 10)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
	}
	if len(calls) != 1 || calls[0].Name != "b" {
		t.Fatalf("expected extraction to continue past the bad call, got %+v", calls)
	}
}

func TestExtractTruncatesAtMax(t *testing.T) {
	text := `<tool_call name="a" /><tool_call name="b" /><tool_call name="c" />`
	calls, _, truncated := Extract(text, 2)
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if truncated != 1 {
		t.Fatalf("expected 1 truncated call, got %d", truncated)
	}
}

func TestNumericVsStringCoercion(t *testing.T) {
	text := `<tool_call name="t" value="-3.5" label="hello" hour="9" />`
	calls, _, _ := Extract(text, 10)
	raw := calls[0].ArgsJSON
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if string(decoded["value"]) != "-3.5" {
		t.Errorf("value should be bare numeric, got %s", decoded["value"])
	}
	if string(decoded["hour"]) != "9" {
		t.Errorf("hour should be bare numeric, got %s", decoded["hour"])
	}
	if string(decoded["label"]) != `"hello"` {
		t.Errorf("label should be quoted string, got %s", decoded["label"])
	}
}

func TestExtractConfidence(t *testing.T) {
	value, found, stripped := ExtractConfidence(`The answer is 5. <confidence value="0.87" />`)
	if !found {
		t.Fatal("expected confidence tag to be found")
	}
	if value != 0.87 {
		t.Errorf("value = %v, want 0.87", value)
	}
	if stripped != "The answer is 5." {
		t.Errorf("stripped = %q, want tag removed", stripped)
	}
}

func TestExtractConfidenceAbsent(t *testing.T) {
	text := "No tag here."
	value, found, stripped := ExtractConfidence(text)
	if found || value != 0 {
		t.Errorf("ExtractConfidence = (%v, %v), want absent", value, found)
	}
	if stripped != text {
		t.Errorf("stripped = %q, want input unchanged", stripped)
	}
}

func TestExtractConfidenceClampsAndPicksLast(t *testing.T) {
	value, found, _ := ExtractConfidence(`<confidence value="0.2" /> revised: <confidence value="1.5" />`)
	if !found {
		t.Fatal("expected confidence tag to be found")
	}
	if value != 1 {
		t.Errorf("value = %v, want clamp to 1 with the later tag winning", value)
	}
}

func TestExtractConfidenceIgnoresMalformed(t *testing.T) {
	cases := []string{
		// missing value, non-numeric value, non-self-closing form
		`<confidence />`,
		`<confidence value="high" />`,
		`<confidence value="0.9">not self-closing</confidence>`,
	}
	for _, text := range cases {
		if _, found, _ := ExtractConfidence(text); found {
			t.Errorf("ExtractConfidence(%q) reported found, want ignored", text)
		}
	}
}

func TestExtractDoesNotPickUpConfidenceTags(t *testing.T) {
	calls, errs, _ := Extract(`<confidence value="0.9" />`, 10)
	if len(calls) != 0 || len(errs) != 0 {
		t.Errorf("Extract treated a confidence tag as a tool call: %+v %v", calls, errs)
	}
}

func TestHasOpenTag(t *testing.T) {
	if !HasOpenTag(`some text <tool_call name="a" value="1"`) {
		t.Error("expected open tag to be detected")
	}
	if HasOpenTag(`<tool_call name="a" />done`) {
		t.Error("did not expect a closed tag to be reported as open")
	}
	if !HasOpenTag(`almost sure <confidence value="0.8`) {
		t.Error("expected an open confidence tag to be detected")
	}
	if HasOpenTag(`<confidence value="0.8" /> done`) {
		t.Error("did not expect a closed confidence tag to be reported as open")
	}
}

func TestIsPartialTagTail(t *testing.T) {
	for _, acc := range []string{"hi <", "hi <tool", "hi <tool_ca", "hi <conf", "hi <confidenc"} {
		if !IsPartialTagTail(acc) {
			t.Errorf("expected %q to be a partial tag tail", acc)
		}
	}
	if IsPartialTagTail("hi there") {
		t.Error("did not expect plain text to be a partial tag tail")
	}
}
