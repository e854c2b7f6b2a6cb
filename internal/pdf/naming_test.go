package pdf

import "testing"

func TestCleanOutputName(t *testing.T) {
	cases := map[string]string{
		"":               "output.pdf",
		"  ":             "output.pdf",
		"report":         "report.pdf",
		"my cool  file":  "my_cool_file.pdf",
		"請求書":            "output.pdf",
		"a*b?c":          "abc.pdf",
		"__draft-2024__": "draft-2024.pdf",
	}
	for in, want := range cases {
		got, err := CleanOutputName(in)
		if err != nil {
			t.Fatalf("CleanOutputName(%q) returned error: %v", in, err)
		}
		if got != want {
			t.Fatalf("CleanOutputName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanOutputNameRejectsExtensionAndSeparators(t *testing.T) {
	for _, in := range []string{"report.pdf", "a/b", `a\b`, "..", "../x"} {
		_, err := CleanOutputName(in)
		if code := codeOf(t, err); code != CodeInvalidOutputName {
			t.Fatalf("CleanOutputName(%q) code = %s", in, code)
		}
	}
}
