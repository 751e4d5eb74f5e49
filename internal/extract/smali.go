package extract

import "strings"

// smaliSkip are the prefixes of method-body lines left untouched.
var smaliSkip = []string{".line", ":", ".prologue"}

// FormatSmali inserts a blank line after every instruction line inside a
// method body. Labels, .line and .prologue directives are kept tight against
// the instruction they annotate. The pass is cosmetic: nothing is validated.
func FormatSmali(in string) string {
	lines := strings.Split(in, "\n")
	inside := false
	for i, line := range lines {
		if strings.HasPrefix(line, ".method") {
			inside = true
		}
		if strings.HasPrefix(line, ".end method") {
			inside = false
		}
		if inside && !skipSmaliLine(line) {
			lines[i] = line + "\n"
		}
	}
	return strings.Join(lines, "\n")
}

func skipSmaliLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, p := range smaliSkip {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}
