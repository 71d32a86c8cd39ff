package mount

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ParseFstab reads a full fstab file (comment lines starting with '#'
// and blank lines are skipped) and parses every remaining line with
// ParseLine.
func ParseFstab(r io.Reader) ([]*MountEntry, error) {
	var out []*MountEntry
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entry, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("mount: fstab line %d: %w", lineNo, err)
		}
		out = append(out, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("mount: reading fstab: %w", err)
	}
	return out, nil
}

// ReadFstabFile opens path and parses it with ParseFstab.
func ReadFstabFile(path string) ([]*MountEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mount: open %s: %w", path, err)
	}
	defer f.Close()
	return ParseFstab(f)
}

// WriteFstab renders entries as a full fstab file body, one
// ToFstabLine per line. Callers rewriting the post-pivot fstab are
// expected to have already filtered entries down to the non-physical
// (soft/remote) ones, since every physical mount now lives on the RAM
// disk and is addressed relative to the new root instead.
func WriteFstab(w io.Writer, entries []*MountEntry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, e.ToFstabLine()); err != nil {
			return err
		}
	}
	return nil
}
