package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Commands understood by the CLI.
var commands = map[string]bool{
	"index":       true,
	"locate":      true,
	"triangulate": true,
	"cache-clear": true,
	"stats":       true,
}

// ParseArguments converts command-line arguments into a map of flags and values
func ParseArguments() map[string]string {
	return ParseArgs(os.Args[1:])
}

// ParseArgs is ParseArguments over an explicit argument list. The first
// known command word is stored under "command".
func ParseArgs(argv []string) map[string]string {
	args := make(map[string]string)

	commandIndex := -1
	for i, a := range argv {
		if commands[a] {
			args["command"] = a
			commandIndex = i
			break
		}
	}

	for i := 0; i < len(argv); i++ {
		if i == commandIndex {
			continue
		}
		arg := argv[i]

		// --key=value
		if strings.HasPrefix(arg, "--") && strings.Contains(arg, "=") {
			parts := strings.SplitN(arg, "=", 2)
			args[strings.TrimPrefix(parts[0], "--")] = parts[1]
			continue
		}

		// --key value, or a bare boolean flag
		if strings.HasPrefix(arg, "--") {
			flagName := strings.TrimPrefix(arg, "--")
			if i+1 >= len(argv) || strings.HasPrefix(argv[i+1], "--") || i+1 == commandIndex {
				args[flagName] = "true"
			} else {
				args[flagName] = argv[i+1]
				i++
			}
		}
	}

	return args
}

// GetDefaultDatabasePath returns the default path for the database file
func GetDefaultDatabasePath() string {
	exePath, err := os.Executable()
	if err != nil {
		return "panofinder.db"
	}
	return filepath.Join(filepath.Dir(exePath), "panofinder.db")
}

// PrintUsage outputs the command-line usage instructions
func PrintUsage() {
	name := filepath.Base(os.Args[0])
	fmt.Printf("Usage:\n")
	fmt.Printf("  %s index --folder=PATH [--cell=ID] [--zoom=N] [--force] [--warm-cache] [--warm-fov=DEG[,DEG...]] [--workers=N]\n", name)
	fmt.Printf("  %s locate --image=PATH --cell=ID [--fov=DEG] [--mode=sampled|exhaustive] [--top-k=N] [--no-embedding]\n", name)
	fmt.Printf("  %s triangulate --observations=FILE.json\n", name)
	fmt.Printf("  %s cache-clear [--cell=ID]\n", name)
	fmt.Printf("  %s stats [--cell=ID]\n", name)
	fmt.Printf("\nCommon parameters:\n")
	fmt.Printf("  --database    : Path to database file (default: %s, env PANOFINDER_DB)\n", GetDefaultDatabasePath())
	fmt.Printf("  --log-level   : debug, info, warn or error (env PANOFINDER_LOG_LEVEL)\n")
	fmt.Printf("  --debug       : Debug logging to --logfile (default: panofinder.log)\n")
	fmt.Printf("\nLocate parameters:\n")
	fmt.Printf("  --fov         : Assumed vertical field of view of the query photo (default: 60)\n")
	fmt.Printf("  --mode        : sampled verifies the embedding top-K, exhaustive verifies every capture\n")
	fmt.Printf("  --detector    : orb or akaze\n")
	fmt.Printf("  --cache-ttl   : Ignore cached embeddings older than this (e.g. 72h, default: never)\n")
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  %s index --folder=/data/captures --warm-cache\n", name)
	fmt.Printf("  %s locate --image=query.jpg --cell=17/70406/42987 --fov=55\n", name)
}
