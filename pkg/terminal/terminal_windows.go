package terminal

import (
	"io"

	"github.com/mattn/go-colorable"
)

// getColorableWriter will return a writer that is capable
// of translating ANSI color codes to Windows console commands.
func getColorableWriter() io.Writer {
	return colorable.NewColorableStdout()
}
