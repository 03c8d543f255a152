package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const statusFileSuffix = ".state"

func runStatus(cmdCtx *commandContext, _ []string) error {
	return writeStatusFiles(cmdCtx.Out, cmdCtx.Config.Reporting.StatusDir)
}

// writeStatusFiles concatenates every status file of dir in name order, which is exactly what a
// check_mk local check prints.
func writeStatusFiles(w io.Writer, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read status dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), statusFileSuffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		raw, readErr := os.ReadFile(filepath.Join(dir, name))
		if readErr != nil {
			return fmt.Errorf("read %s: %w", name, readErr)
		}
		line := strings.TrimRight(string(raw), "\n")
		if line == "" {
			continue
		}
		if err := writeln(w, line); err != nil {
			return err
		}
	}
	return nil
}
