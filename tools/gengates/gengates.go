package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
)

const (
	vectorCount = 256

	// Registers are saved in reverse order so that RAX ends up at the
	// lowest address, matching the field order of gate.Registers.
	commonPrologue = `	PUSHQ R15
	PUSHQ R14
	PUSHQ R13
	PUSHQ R12
	PUSHQ R11
	PUSHQ R10
	PUSHQ R9
	PUSHQ R8
	PUSHQ BP
	PUSHQ DI
	PUSHQ SI
	PUSHQ DX
	PUSHQ CX
	PUSHQ BX
	PUSHQ AX
`

	commonEpilogue = `	POPQ AX
	POPQ BX
	POPQ CX
	POPQ DX
	POPQ SI
	POPQ DI
	POPQ BP
	POPQ R8
	POPQ R9
	POPQ R10
	POPQ R11
	POPQ R12
	POPQ R13
	POPQ R14
	POPQ R15
`
)

// errorCodeVectors lists the exceptions for which the CPU pushes an error
// code before transferring control to the handler.
var errorCodeVectors = map[int]bool{
	8: true, 10: true, 11: true, 12: true, 13: true, 14: true,
	17: true, 21: true, 29: true, 30: true,
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[gengates] error: %s\n", err.Error())
	os.Exit(1)
}

// genEntriesFile returns the assembly source for the gate entry stubs, the
// shared save/dispatch/restore sequence and the stub address table.
func genEntriesFile() []byte {
	var buf bytes.Buffer

	fmt.Fprint(&buf, "// Code generated by gengates; DO NOT EDIT.\n\n")
	fmt.Fprint(&buf, "#include \"textflag.h\"\n\n")
	fmt.Fprint(&buf, "// Each entry stub leaves the vector number and an error code on the stack\n")
	fmt.Fprint(&buf, "// (0 for vectors where the CPU does not push one) and jumps to gateCommon.\n")

	for vector := 0; vector < vectorCount; vector++ {
		fmt.Fprintf(&buf, "\nTEXT gateEntry%d<>(SB), NOSPLIT, $0\n", vector)
		if !errorCodeVectors[vector] {
			fmt.Fprint(&buf, "\tPUSHQ $0\n")
		}
		fmt.Fprintf(&buf, "\tPUSHQ $%d\n", vector)
		fmt.Fprint(&buf, "\tJMP gateCommon<>(SB)\n")
	}

	fmt.Fprint(&buf, "\n// gateCommon saves the general purpose registers so that the stack holds a\n")
	fmt.Fprint(&buf, "// gate.Registers value, calls dispatchInterrupt with its address and then\n")
	fmt.Fprint(&buf, "// restores the (possibly modified) registers before returning with IRETQ.\n")
	fmt.Fprint(&buf, "TEXT gateCommon<>(SB), NOSPLIT, $0\n")
	fmt.Fprint(&buf, commonPrologue)
	fmt.Fprint(&buf, "\tMOVQ SP, AX\n")
	fmt.Fprint(&buf, "\tPUSHQ AX\n")
	fmt.Fprint(&buf, "\tCALL ·dispatchInterrupt(SB)\n")
	fmt.Fprint(&buf, "\tPOPQ AX\n")
	fmt.Fprint(&buf, commonEpilogue)
	fmt.Fprint(&buf, "\tADDQ $16, SP\n")
	fmt.Fprint(&buf, "\tIRETQ\n\n")

	for vector := 0; vector < vectorCount; vector++ {
		fmt.Fprintf(&buf, "DATA gateEntryTab<>+%d(SB)/8, $gateEntry%d<>(SB)\n", vector*8, vector)
	}
	fmt.Fprintf(&buf, "GLOBL gateEntryTab<>(SB), RODATA, $%d\n\n", vectorCount*8)

	fmt.Fprint(&buf, "// func gateEntryTable() uintptr\n")
	fmt.Fprint(&buf, "TEXT ·gateEntryTable(SB), NOSPLIT, $0-8\n")
	fmt.Fprint(&buf, "\tLEAQ gateEntryTab<>(SB), AX\n")
	fmt.Fprint(&buf, "\tMOVQ AX, ret+0(FP)\n")
	fmt.Fprint(&buf, "\tRET\n")

	return buf.Bytes()
}

func runTool() error {
	output := flag.String("out", "-", "a file to write the generated assembly or - to output to STDOUT")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "gengates: generate the amd64 interrupt gate entry stubs\n\n")
		fmt.Fprint(os.Stderr, "Usage: gengates [options]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	src := genEntriesFile()

	if *output == "-" {
		_, err := os.Stdout.Write(src)
		return err
	}

	return os.WriteFile(*output, src, 0644)
}

func main() {
	if err := runTool(); err != nil {
		exit(err)
	}
}
