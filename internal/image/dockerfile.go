// SPDX-License-Identifier: MPL-2.0

package image

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/rohanprabhu-jm/confinity/internal/bundle"
)

// Entrypoint is the fixed sandbox command: the dispatcher executable unit
// extracted under UnitRoot, told to serve one call.
func Entrypoint() []string {
	dispatcher, _ := bundle.UnitPath(bundle.DispatcherUnit)
	return []string{path.Join(UnitRoot, dispatcher), "internal", "dispatch"}
}

// generateDockerfile creates the Dockerfile content for the sandbox image.
func (b *Builder) generateDockerfile(layout *bundle.Layout) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "FROM %s\n\n", b.config.BaseImage)

	sb.WriteString("# Layer 1: unit tree (auto-extracted)\n")
	fmt.Fprintf(&sb, "ADD %s %s/\n\n", bundle.ArchiveName, UnitRoot)

	sb.WriteString("# Layer 2: vendored libraries\n")
	fmt.Fprintf(&sb, "COPY %s/ %s/\n\n", bundle.LibsDir, LibRoot)

	fmt.Fprintf(&sb, "ENV CONFINITY_UNIT_PATH=%q CONFINITY_LIB_PATH=%q LD_LIBRARY_PATH=%q\n",
		UnitRoot, LibRoot, LibRoot)
	fmt.Fprintf(&sb, "LABEL %s=%q %s=%q\n\n",
		LabelDigest, layout.Digest, LabelUnits, strconv.Itoa(len(layout.Units)))

	quoted := make([]string, 0, len(Entrypoint()))
	for _, arg := range Entrypoint() {
		quoted = append(quoted, strconv.Quote(arg))
	}
	fmt.Fprintf(&sb, "ENTRYPOINT [%s]\n", strings.Join(quoted, ", "))

	return sb.String()
}
