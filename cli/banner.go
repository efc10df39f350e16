package cli

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/caarlos0/env/v11"

	"github.com/amp-labs/amp-fsm/logger"
	"github.com/amp-labs/amp-fsm/using"
)

const (
	boxTopLeft     = "╒"
	boxBottomLeft  = "└"
	boxTopRight    = "╕"
	boxBottomRight = "┘"
	boxSide        = "│"
	boxTop         = "═"
	boxBottom      = "─"
	dividerLeft    = "┠"
	dividerMiddle  = "─"
	dividerRight   = "┨"
	ellipsis       = "…"
)

type Alignment int

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

const (
	// DefaultTerminalWidth is used when the terminal size cannot be read.
	DefaultTerminalWidth = 80

	borderWidth = 2
)

type bannerConfig struct {
	Suppress bool `env:"FSM_NO_BANNER" envDefault:"false"`
}

// suppressBanner reports whether FSM_NO_BANNER asks for plain output. Unparseable values count as false.
var suppressBanner = sync.OnceValue(func() bool { //nolint:gochecknoglobals
	cfg, err := env.ParseAs[bannerConfig]()

	return err == nil && cfg.Suppress
})

func terminalWidth() int {
	_, w, err := TerminalDimensions()
	if err != nil || w == 0 {
		return DefaultTerminalWidth
	}

	return int(w) //nolint:gosec // Terminal width is bounded by screen size
}

func DividerAutoWidth() string {
	return Divider(terminalWidth())
}

func BannerAutoWidth(s string, a Alignment) string {
	return Banner(s, terminalWidth(), a)
}

func Divider(width int) string {
	return dividerLeft + strings.Repeat(dividerMiddle, max(width-borderWidth, 0)) + dividerRight + "\n"
}

// Banner boxes every line of s into width columns. Lines that do not fit are
// truncated with an ellipsis.
func Banner(s string, width int, alignment Alignment) string {
	if suppressBanner() {
		return s + "\n"
	}

	if s == "" || width <= borderWidth {
		return ""
	}

	inner := width - borderWidth
	parts := []string{boxTopLeft + strings.Repeat(boxTop, inner) + boxTopRight}

	for _, line := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		padded, ok := pad(line, inner, alignment)
		if !ok {
			return ""
		}

		parts = append(parts, boxSide+padded+boxSide)
	}

	parts = append(parts, boxBottomLeft+strings.Repeat(boxBottom, inner)+boxBottomRight)

	return strings.Join(parts, "\n")
}

func countGraphic(s string) int {
	count := 0

	for _, r := range s {
		if unicode.IsGraphic(r) {
			count++
		}
	}

	return count
}

// truncateGraphic keeps the first n-1 graphic runes so an ellipsis fits after them.
func truncateGraphic(s string, n int) (string, int) {
	var out strings.Builder

	count := 0

	for _, r := range s {
		if unicode.IsGraphic(r) {
			count++
		}

		if count >= n {
			break
		}

		out.WriteRune(r)
	}

	return out.String(), count
}

func pad(text string, width int, alignment Alignment) (string, bool) {
	length := countGraphic(text)

	if length > width {
		text, length = truncateGraphic(text, width)
		text += ellipsis
	}

	diff := max(width-length, 0)

	switch alignment {
	case AlignLeft:
		return text + strings.Repeat(" ", diff), true
	case AlignRight:
		return strings.Repeat(" ", diff) + text, true
	case AlignCenter:
		left := diff / 2 //nolint:mnd

		return strings.Repeat(" ", left) + text + strings.Repeat(" ", diff-left), true
	default:
		return "", false
	}
}

func size() (string, error) {
	var out []byte

	err := openTTY().Use(func(tty *os.File) error {
		var err error

		// Outputs: "rows columns"
		cmd := exec.Command("stty", "size")
		cmd.Stdin = tty
		out, err = cmd.Output()

		return err
	})

	return string(out), err
}

func openTTY() *using.Resource[*os.File] {
	return using.NewResource(func() (*os.File, using.Release, error) {
		f, err := os.Open("/dev/tty")
		if err != nil {
			return nil, nil, err
		}

		return f, func(bool) error {
			closeLogged(f, "failed to close terminal")

			return nil
		}, nil
	})
}

// closeLogged closes c and logs, rather than returns, a failure.
func closeLogged(c io.Closer, msg string) {
	if err := c.Close(); err != nil {
		logger.Get().Error(msg, "error", err)
	}
}

func parse(input string) (uint, uint, error) {
	fields := strings.Fields(input)
	if len(fields) != 2 { //nolint:mnd
		return 0, 0, fmt.Errorf("%w: %q", ErrUnexpectedSize, input)
	}

	rows, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return 0, 0, err
	}

	cols, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, 0, err
	}

	return uint(rows), uint(cols), nil
}

// TerminalDimensions returns (rows, cols, err).
func TerminalDimensions() (uint, uint, error) {
	output, err := size()
	if err != nil {
		return 0, 0, err
	}

	return parse(output)
}
