package diff

import (
	"fmt"
	"strings"
)

// FormatPatch renders changes as unified-patch text.
//
// Output format per file:
//
//	diff --forge a/path b/path
//	--- a/path
//	+++ b/path
//	@@ -1,4 +1,4 @@
//	 context
//	-old line
//	+new line
//
// Added and removed files use /dev/null on the absent side. Binary
// modifications print a one-line marker instead of hunks.
func FormatPatch(changes []Change) string {
	var b strings.Builder

	for _, c := range changes {
		fmt.Fprintf(&b, "diff --forge a/%s b/%s\n", c.Path, c.Path)

		switch c.Type {
		case Added:
			fmt.Fprintf(&b, "new file mode %s\n", c.NewMode)
			fmt.Fprintf(&b, "--- /dev/null\n")
			fmt.Fprintf(&b, "+++ b/%s\n", c.Path)
		case Removed:
			fmt.Fprintf(&b, "deleted file mode %s\n", c.OldMode)
			fmt.Fprintf(&b, "--- a/%s\n", c.Path)
			fmt.Fprintf(&b, "+++ /dev/null\n")
		case ModeChanged:
			fmt.Fprintf(&b, "old mode %s\n", c.OldMode)
			fmt.Fprintf(&b, "new mode %s\n", c.NewMode)
		case Modified:
			if c.OldMode != c.NewMode {
				fmt.Fprintf(&b, "old mode %s\n", c.OldMode)
				fmt.Fprintf(&b, "new mode %s\n", c.NewMode)
			}
			fmt.Fprintf(&b, "--- a/%s\n", c.Path)
			fmt.Fprintf(&b, "+++ b/%s\n", c.Path)
			if c.Binary {
				fmt.Fprintf(&b, "Binary files a/%s and b/%s differ\n", c.Path, c.Path)
				continue
			}
			for _, h := range c.Hunks {
				fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
				for _, l := range h.Lines {
					fmt.Fprintf(&b, "%c%s\n", l.Kind, l.Text)
				}
			}
		}
	}

	return b.String()
}
