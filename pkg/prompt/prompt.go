// Package prompt implements the interactive front end: it asks for an input
// image, a thread count, a kernel size and an output name, re-asking until
// each answer is usable.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"go-boxblur/pkg/codec"
)

// Prompter reads whitespace-separated answers from in and writes questions
// and complaints to out.
type Prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
	exists  func(path string) bool
}

func New(in io.Reader, out io.Writer) *Prompter {
	scanner := bufio.NewScanner(in)
	scanner.Split(bufio.ScanWords)
	return &Prompter{
		scanner: scanner,
		out:     out,
		exists:  fileExists,
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (p *Prompter) ask(question string) (string, error) {
	fmt.Fprint(p.out, question)
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return p.scanner.Text(), nil
}

func (p *Prompter) complain(msg string) {
	fmt.Fprintln(p.out, "Error: "+msg)
}

// InputPath asks until the answer names an existing file.
func (p *Prompter) InputPath() (string, error) {
	for {
		answer, err := p.ask("Enter input image (with .png extension): ")
		if err != nil {
			return "", err
		}
		if !p.exists(answer) {
			p.complain("The file does not exist. Please try again.")
			continue
		}
		return answer, nil
	}
}

// ThreadCount asks until the answer is a positive integer. Answers above
// height are lowered to height.
func (p *Prompter) ThreadCount(height int) (int, error) {
	for {
		answer, err := p.ask("Enter number of threads to use: ")
		if err != nil {
			return 0, err
		}
		n, ok := parseDigits(answer)
		switch {
		case !ok:
			p.complain("Please enter a valid integer for the number of threads.")
		case n <= 0:
			p.complain("Number of threads must be a positive integer.")
		case n > height:
			fmt.Fprintf(p.out, "Adjusted number of threads to %d (height of the image).\n", height)
			return height, nil
		default:
			return n, nil
		}
	}
}

// KernelSize asks until the answer is a positive odd integer.
func (p *Prompter) KernelSize() (int, error) {
	for {
		answer, err := p.ask("Enter an odd kernel size (e.g., 3, 5, 7): ")
		if err != nil {
			return 0, err
		}
		n, ok := parseDigits(answer)
		switch {
		case !ok, n <= 0:
			p.complain("Kernel size must be a positive integer.")
		case n%2 == 0:
			p.complain("Kernel size must be an odd number.")
		default:
			return n, nil
		}
	}
}

// OutputPath asks until the answer ends in .png.
func (p *Prompter) OutputPath() (string, error) {
	for {
		answer, err := p.ask("Enter output image name (with .png extension): ")
		if err != nil {
			return "", err
		}
		if !codec.IsPNGPath(answer) {
			p.complain("The output file must have a .png extension.")
			continue
		}
		return answer, nil
	}
}

// parseDigits accepts only unsigned decimal strings that fit in an int.
func parseDigits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
