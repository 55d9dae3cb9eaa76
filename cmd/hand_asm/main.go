// hand_asm takes a filename and produces a bin file
// from parsing the contents as a hand assembled listing
// of the form:
//
//	XXXX OP A1 A2
//
// Where XXXX is the address field and OP is the opcode
// A1,A2 are then optional params as needed. Anything after
// a tab or a (*) marker is a comment and ignored, as are lines
// not starting with an address field.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var (
	offset = flag.Int("offset", 0x0000, "Offset to start writing assembled data. Everything prior is zero filled.")
)

var addrLine = regexp.MustCompile(`^[0-9A-F]{4} `)

func main() {
	flag.Parse()
	if len(flag.Args()) != 2 {
		log.Fatalf("Invalid command: %s <input> <output>", os.Args[0])
	}
	fn := flag.Args()[0]
	out := flag.Args()[1]

	f, err := os.Open(fn)
	if err != nil {
		log.Fatalf("Can't open %q for input - %v", fn, err)
	}
	defer f.Close()

	output := make([]byte, *offset)
	scanner := bufio.NewScanner(f)
	l := 0
	for scanner.Scan() {
		t := scanner.Text()
		l++
		if !addrLine.MatchString(t) {
			continue
		}
		// Strip comments then the address field.
		if i := strings.IndexByte(t, '\t'); i >= 0 {
			t = t[:i]
		}
		if i := strings.Index(t, "(*)"); i >= 0 {
			t = t[:i]
		}
		t = strings.TrimSpace(t[5:])
		if t == "" {
			continue
		}
		// Should be 1-3 tokens
		toks := strings.Split(t, " ")
		if len(toks) > 3 {
			log.Fatalf("Invalid line %d - %q", l, t)
		}
		for _, v := range toks {
			b, err := strconv.ParseUint(v, 16, 8)
			if err != nil {
				log.Fatalf("Can't process input line %d %q - %v", l, t, err)
			}
			output = append(output, byte(b))
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("Error reading %q - %v", fn, err)
	}
	of, err := os.Create(out)
	if err != nil {
		log.Fatalf("Can't open output %q - %v", out, err)
	}
	n, err := of.Write(output)
	if got, want := n, len(output); got != want {
		log.Fatalf("Short write to %q. Got %d and want %d", out, got, want)
	}
	if err != nil {
		log.Fatalf("Got error writing to %q - %v", out, err)
	}
	if err := of.Close(); err != nil {
		log.Fatalf("Error closing %q - %v", out, err)
	}
	fmt.Printf("Wrote %d bytes to %q\n", len(output), out)
}
