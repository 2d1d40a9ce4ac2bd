package utils

import "testing"

func TestParseArgs(t *testing.T) {
	args := ParseArgs([]string{"--database", "/tmp/p.db", "locate", "--image=q.jpg", "--fov", "55", "--no-embedding", "--mode=exhaustive"})

	want := map[string]string{
		"command":      "locate",
		"database":     "/tmp/p.db",
		"image":        "q.jpg",
		"fov":          "55",
		"no-embedding": "true",
		"mode":         "exhaustive",
	}
	for k, v := range want {
		if args[k] != v {
			t.Errorf("args[%q] = %q, want %q", k, args[k], v)
		}
	}
	if len(args) != len(want) {
		t.Errorf("args = %v", args)
	}
}

func TestParseArgsFlagBeforeCommand(t *testing.T) {
	args := ParseArgs([]string{"--debug", "stats"})
	if args["debug"] != "true" || args["command"] != "stats" {
		t.Errorf("args = %v", args)
	}
}

func TestParseArgsNoCommand(t *testing.T) {
	args := ParseArgs([]string{"--help"})
	if _, ok := args["command"]; ok {
		t.Errorf("unexpected command in %v", args)
	}
}
