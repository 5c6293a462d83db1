package pkg

import (
	"fmt"
	"os"

	"github.com/mitchellh/colorstring"
	"github.com/schollz/progressbar/v3"
)

func PrintTask(msg string) {
	colorstring.Printf("[blue][bold]==>[default] %s\n", msg)
}

func PrintSubtask(msg string) {
	colorstring.Printf("[green][bold]  ->[reset] %s\n", msg)
}

func PrintError(msg string) {
	colorstring.Fprintf(os.Stderr, "[red][bold]  ->[reset] %s\n", msg)
}

// IsCI reports whether we're running in a CI job where animated output only clutters the log
func IsCI() bool {
	return os.Getenv("CI") == "true"
}

// NewBytesBar returns a progress bar for downloads and extraction
func NewBytesBar(length int64, desc string) *progressbar.ProgressBar {
	if IsCI() {
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.DefaultBytes(length, desc)
}

// NewCountBar returns a progress bar that counts processed items
func NewCountBar(count int, desc string) *progressbar.ProgressBar {
	if IsCI() {
		return progressbar.NewOptions(count, progressbar.OptionSetVisibility(false))
	}

	return progressbar.NewOptions(count,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
	)
}
