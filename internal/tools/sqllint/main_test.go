package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheck(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{
			name: "marked statement passes",
			text: "--sql 24f450ae-96f4-4fce-99dc-58d9eee96882\nselect 1",
			want: "",
		},
		{
			name: "unmarked select",
			text: "select id from jobs where status = $1",
			want: "missing --sql marker",
		},
		{
			name: "unmarked statement behind comment",
			text: "-- legacy note\nupdate jobs set status = $1",
			want: "missing --sql marker",
		},
		{
			name: "marker without uuid",
			text: "--sql todo\nselect 1",
			want: "malformed --sql marker",
		},
		{
			name: "uppercase uuid rejected",
			text: "--sql 24F450AE-96F4-4FCE-99DC-58D9EEE96882\nselect 1",
			want: "malformed --sql marker",
		},
		{
			name: "prose is ignored",
			text: "failed to load stats",
			want: "",
		},
	}

	for _, tc := range cases {
		if got := check(tc.text); got != tc.want {
			t.Errorf("%s: check() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestLintFileFlagsUnmarkedConstants(t *testing.T) {
	src := "package q\n\nconst (\n" +
		"\tQGood = `--sql a0e82352-ee35-4645-bc6f-a55e10843fba\nselect 1`\n" +
		"\tQBad = `select id from jobs`\n" +
		")\n"

	path := filepath.Join(t.TempDir(), "queries.go")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	problems, err := lintFile(path)
	if err != nil {
		t.Fatalf("lintFile: %v", err)
	}
	if len(problems) != 1 {
		t.Fatalf("got %d problems, want 1: %+v", len(problems), problems)
	}
	if problems[0].name != "QBad" {
		t.Errorf("flagged %q, want QBad", problems[0].name)
	}
	if problems[0].reason != "missing --sql marker" {
		t.Errorf("reason = %q", problems[0].reason)
	}
}
