package mounttab

import (
	"bufio"
	"os"
	"strings"
)

// parseFile reads one mount table file. The readable result is false when
// the file cannot be opened or holds no data at all, telling the caller
// to fall through to the next source.
func parseFile(path string) (entries []Entry, readable bool) {
	file, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		readable = true

		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		entries = append(entries, Entry{
			Device:     unescapeField(fields[0]),
			MountPoint: unescapeField(fields[1]),
		})
	}

	if scanner.Err() != nil {
		return nil, false
	}

	return entries, readable
}

// unescapeField decodes the octal escapes the kernel uses for whitespace
// in mount table fields: \040 space, \011 tab, \012 newline, \134
// backslash.
func unescapeField(s string) string {
	s = strings.ReplaceAll(s, "\\040", " ")
	s = strings.ReplaceAll(s, "\\011", "\t")
	s = strings.ReplaceAll(s, "\\012", "\n")
	s = strings.ReplaceAll(s, "\\134", "\\")
	return s
}
