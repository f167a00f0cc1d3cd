package chattemplate

import "testing"

func TestDetect(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/models/qwen2.5-7b-instruct.gguf", "qwen"},
		{"/models/granite-3.1-8b.gguf", "granite"},
		{"/models/Phi-3-mini-4k.gguf", "phi"},
		{"/models/Llama-3-8b-instruct.gguf", "llama-3"},
		{"/models/llama3-8b.gguf", "llama-3"},
		{"/models/mystery-model.gguf", defaultFamily},
	}
	for _, c := range cases {
		if got := Detect(c.path); got != c.want {
			t.Errorf("Detect(%q) = %q, want %q", c.path, got, c.want)
		}
	}
}

func TestGetAuto(t *testing.T) {
	tpl := Get("auto", "/models/granite-3.1-2b.gguf")
	if tpl == nil || tpl.FamilyTag != "granite" {
		t.Fatalf("Get(auto, granite path) = %+v, want granite", tpl)
	}
}

func TestGetUnknownFallsBackToDefault(t *testing.T) {
	tpl := Get("nonexistent-family", "")
	if tpl == nil || tpl.FamilyTag != defaultFamily {
		t.Fatalf("Get(nonexistent) = %+v, want default family %q", tpl, defaultFamily)
	}
}

func TestHasStopSequence(t *testing.T) {
	tpl := Get("qwen", "")
	if !HasStopSequence(tpl, "hello <|im_end|> trailing") {
		t.Error("expected stop sequence to be detected")
	}
	if HasStopSequence(tpl, "hello world") {
		t.Error("did not expect stop sequence in plain text")
	}
}

func TestToolResultFraming(t *testing.T) {
	tpl := Get("qwen", "")
	prefix := ToolResultPrefix(tpl)
	suffix := ToolResultSuffix(tpl)
	if prefix != tpl.UserOpen+"<tool_result>" {
		t.Errorf("unexpected prefix: %q", prefix)
	}
	if suffix != "</tool_result>"+tpl.UserClose+tpl.AssistantOpen {
		t.Errorf("unexpected suffix: %q", suffix)
	}
}

func TestFormatSystemRoundTrip(t *testing.T) {
	tpl := Get("qwen", "")
	framed := FormatSystem(tpl, "be helpful")
	want := tpl.SystemOpen + "be helpful" + tpl.SystemClose
	if framed != want {
		t.Errorf("FormatSystem = %q, want %q", framed, want)
	}
}
