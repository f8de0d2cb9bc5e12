package sshtransport

import (
	"bufio"
	"io"
)

// scanLines copies newline-delimited text from r to out until EOF,
// then closes neither (the caller owns both lifetimes).
func scanLines(r io.Reader, out chan<- string) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}
