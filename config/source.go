package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// CredentialSource supplies values for credential fields that no other
// resolution stage produced. Tests substitute a fixed-value implementation.
type CredentialSource interface {
	ReadLine(prompt string) (string, error)
	ReadSecret(prompt string) (string, error)
}

// TerminalSource prompts on standard input. Secrets are read without echo
// when stdin is a terminal.
type TerminalSource struct{}

func (TerminalSource) ReadLine(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (TerminalSource) ReadSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return TerminalSource{}.ReadLine("")
	}
	secret, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(secret)), nil
}

// StaticSource returns fixed values and never touches the terminal.
type StaticSource struct {
	Key    string
	Secret string
}

func (s StaticSource) ReadLine(string) (string, error)   { return s.Key, nil }
func (s StaticSource) ReadSecret(string) (string, error) { return s.Secret, nil }
