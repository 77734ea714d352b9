package display

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/backmassage/webpshrink/internal/term"
)

const banner = `               _               _          _       _
 __      _____| |__  _ __  ___| |__  _ __(_)_ __ | | __
 \ \ /\ / / _ \ '_ \| '_ \/ __| '_ \| '__| | '_ \| |/ /
  \ V  V /  __/ |_) | |_) \__ \ | | | |  | | | | |   <
   \_/\_/ \___|_.__/| .__/|___/_| |_|_|  |_|_| |_|_|\_\
                    |_|`

var (
	bannerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	taglineStyle = lipgloss.NewStyle().Faint(true)
)

// PrintBanner writes the ASCII art banner and tagline to w; styled when
// colors are enabled.
func PrintBanner(w io.Writer, version string) {
	tagline := fmt.Sprintf("v%s - size-targeted WebP re-encoder", version)
	if !term.Enabled() {
		fmt.Fprintln(w, banner)
		fmt.Fprintln(w, tagline)
		return
	}
	fmt.Fprintln(w, bannerStyle.Render(banner))
	fmt.Fprintln(w, taglineStyle.Render(tagline))
}
