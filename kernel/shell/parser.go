package shell

import "github.com/WebFirstLanguage/wflos/kernel"

// CommandID identifies a built-in shell command.
type CommandID uint8

// The list of built-in commands.
const (
	CmdEmpty CommandID = iota
	CmdHelp
	CmdClear
	CmdEcho
	CmdVersion
	CmdMemInfo
	CmdAlloc
	CmdFree
	CmdIRQ
	CmdPIC
	CmdCPU
	CmdDrivers
	CmdHalt
)

// Command is a parsed command line. Args points into the line buffer that
// was passed to Parse and is only valid until the buffer is reused.
type Command struct {
	ID   CommandID
	Args []byte
}

type commandEntry struct {
	name  string
	id    CommandID
	usage string
}

var (
	// ErrUnknownCommand is returned by Parse for unrecognized commands.
	ErrUnknownCommand = &kernel.Error{Module: "shell", Message: "unknown command; type 'help' for available commands"}

	commandTable = [...]commandEntry{
		{"help", CmdHelp, "help          show this help message"},
		{"clear", CmdClear, "clear         clear the screen"},
		{"echo", CmdEcho, "echo TEXT     print text to the screen"},
		{"version", CmdVersion, "version       show the kernel version"},
		{"meminfo", CmdMemInfo, "meminfo       display physical memory statistics"},
		{"mem", CmdMemInfo, ""},
		{"alloc", CmdAlloc, "alloc         allocate a physical frame"},
		{"free", CmdFree, "free ADDR     release the frame at hex address ADDR"},
		{"irq", CmdIRQ, "irq           show interrupt counters"},
		{"pic", CmdPIC, "pic           show interrupt controller state"},
		{"cpu", CmdCPU, "cpu           show the CPU vendor"},
		{"drivers", CmdDrivers, "drivers       list active device drivers"},
		{"halt", CmdHalt, "halt          halt the system"},
	}
)

// Parse splits line into a command name and its arguments. Leading and
// trailing whitespace is ignored; a blank line parses to CmdEmpty.
func Parse(line []byte) (Command, *kernel.Error) {
	line = trimSpace(line)
	if len(line) == 0 {
		return Command{ID: CmdEmpty}, nil
	}

	nameEnd := 0
	for nameEnd < len(line) && !isSpace(line[nameEnd]) {
		nameEnd++
	}

	name := line[:nameEnd]
	for i := range commandTable {
		if string(name) == commandTable[i].name {
			return Command{ID: commandTable[i].id, Args: trimSpace(line[nameEnd:])}, nil
		}
	}

	return Command{}, ErrUnknownCommand
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t'
}

func trimSpace(b []byte) []byte {
	for len(b) > 0 && isSpace(b[0]) {
		b = b[1:]
	}
	for len(b) > 0 && isSpace(b[len(b)-1]) {
		b = b[:len(b)-1]
	}
	return b
}

// parseHex parses an unsigned hex number with an optional 0x prefix.
func parseHex(b []byte) (uint64, bool) {
	if len(b) > 2 && b[0] == '0' && (b[1] == 'x' || b[1] == 'X') {
		b = b[2:]
	}

	if len(b) == 0 || len(b) > 16 {
		return 0, false
	}

	var v uint64
	for _, ch := range b {
		var digit byte
		switch {
		case ch >= '0' && ch <= '9':
			digit = ch - '0'
		case ch >= 'a' && ch <= 'f':
			digit = ch - 'a' + 10
		case ch >= 'A' && ch <= 'F':
			digit = ch - 'A' + 10
		default:
			return 0, false
		}
		v = v<<4 | uint64(digit)
	}

	return v, true
}
