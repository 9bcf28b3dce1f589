// Package shell implements the interactive kernel command line. It reads
// keys buffered by the keyboard driver, echoes them to the kernel log and
// executes the built-in commands.
package shell

import (
	"github.com/WebFirstLanguage/wflos/device/ps2"
	"github.com/WebFirstLanguage/wflos/kernel/cpu"
	"github.com/WebFirstLanguage/wflos/kernel/kfmt"
)

const (
	// Prompt is printed before each command line.
	Prompt = "wflos> "

	// MaxLineLength is the number of characters a command line can hold.
	// Further input is ignored.
	MaxLineLength = 128
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	readKeyFn = readKey
	waitFn    = cpu.WaitForInterrupt

	lineBuf [MaxLineLength]byte
	echoBuf [1]byte

	eraseSeq = []byte("\b \b")
)

func readKey() (byte, bool) {
	return ps2.ActiveKeyboard().ReadKey()
}

// Run prints the shell banner and executes commands forever.
func Run() {
	kfmt.Printf("\n=== wflos shell ===\ntype 'help' for available commands\n\n")
	for {
		step()
	}
}

// step reads and executes a single command line.
func step() {
	kfmt.Printf("%s", Prompt)

	cmd, err := Parse(readLine())
	if err != nil {
		kfmt.Printf("error: %s\n", err.Message)
		return
	}

	Execute(cmd)
}

// readLine collects keys into the line buffer until enter is pressed and
// returns the line without the terminating newline. The CPU sleeps until the
// next interrupt whenever no keys are buffered.
func readLine() []byte {
	out := kfmt.Output()

	var n int
	for {
		key, ok := readKeyFn()
		if !ok {
			waitFn()
			continue
		}

		switch {
		case key == '\n':
			kfmt.Printf("\n")
			return lineBuf[:n]
		case key == ps2.KeyBackspace:
			if n > 0 {
				n--
				out.Write(eraseSeq)
			}
		case key == ps2.KeyEscape:
			for ; n > 0; n-- {
				out.Write(eraseSeq)
			}
		case key >= ' ' && key <= '~':
			if n < MaxLineLength {
				lineBuf[n] = key
				n++
				echoBuf[0] = key
				out.Write(echoBuf[:])
			}
		}
	}
}
