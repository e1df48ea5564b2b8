//go:build ignore

// build.go - devpayr build script
// Usage: go run build.go [-target=TARGET] [-v]
// Targets: all, build, test, clean, release

package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
)

const (
	module  = "github.com/devpayr/devpayr-go"
	binName = "devpayr"
)

var (
	distDir = "dist"

	releaseTargets = []string{
		"linux/amd64",
		"linux/arm64",
		"darwin/amd64",
		"darwin/arm64",
		"windows/amd64",
	}

	stepFmt = color.New(color.FgBlue, color.Bold).SprintFunc()
	okFmt   = color.New(color.FgGreen).SprintFunc()
	errFmt  = color.New(color.FgRed, color.Bold).SprintFunc()
)

func main() {
	target := flag.String("target", "all", "Build target")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	start := time.Now()
	var err error
	switch *target {
	case "all":
		if err = runTests(*verbose); err == nil {
			err = build(runtime.GOOS, runtime.GOARCH, *verbose)
		}
	case "build":
		err = build(runtime.GOOS, runtime.GOARCH, *verbose)
	case "test":
		err = runTests(*verbose)
	case "clean":
		err = os.RemoveAll(distDir)
	case "release":
		for _, t := range releaseTargets {
			goos, goarch, _ := strings.Cut(t, "/")
			if err = build(goos, goarch, *verbose); err != nil {
				break
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown target %q (all, build, test, clean, release)\n", *target)
		os.Exit(2)
	}

	if err != nil {
		fmt.Println(errFmt("✗"), err)
		os.Exit(1)
	}
	fmt.Println(okFmt("✓"), "done in", time.Since(start).Round(time.Millisecond))
}

// ldflags stamps version metadata into pkg/devpayr
func ldflags() string {
	commit := output("git", "rev-parse", "--short", "HEAD")
	if commit == "" {
		commit = "unknown"
	}
	pkg := module + "/pkg/devpayr"
	return fmt.Sprintf("-s -w -X %s.BuildTime=%s -X %s.GitCommit=%s",
		pkg, time.Now().UTC().Format(time.RFC3339), pkg, commit)
}

func build(goos, goarch string, verbose bool) error {
	name := binName
	if goos == "windows" {
		name += ".exe"
	}
	out := filepath.Join(distDir, goos+"-"+goarch, name)
	fmt.Println(stepFmt("==>"), "building", out)

	cmd := exec.Command("go", "build", "-trimpath", "-ldflags", ldflags(), "-o", out, "./cmd/devpayr")
	cmd.Env = append(os.Environ(), "GOOS="+goos, "GOARCH="+goarch, "CGO_ENABLED=0")
	return run(cmd, verbose)
}

func runTests(verbose bool) error {
	fmt.Println(stepFmt("==>"), "running tests")
	args := []string{"test", "-race", "./..."}
	if verbose {
		args = append(args, "-v")
	}
	return run(exec.Command("go", args...), true)
}

func run(cmd *exec.Cmd, verbose bool) error {
	if verbose {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd.Run()
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w\n%s", strings.Join(cmd.Args, " "), err, out)
	}
	return nil
}

func output(name string, args ...string) string {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
