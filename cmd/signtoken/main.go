// Command signtoken mints signed preview links for unpublished posts from
// the command line, and can generate the Ed25519 key pair the server and
// this tool share.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/kalmarr/matrixcbs/internal/model"
	"github.com/kalmarr/matrixcbs/internal/preview"
)

func main() {
	keyFile := flag.String("key", "privkey.pem", "Path to the Ed25519 private key PEM")
	ttl := flag.Duration("ttl", time.Hour, "Token lifetime")
	generate := flag.Bool("generate", false, "Generate a new key pair (privkey.pem, pubkey.pem) and exit")
	flag.Parse()

	if *generate {
		generateKeys()
		return
	}

	privPEM, err := os.ReadFile(*keyFile)
	if err != nil {
		fmt.Println("Error reading private key:", err)
		os.Exit(1)
	}
	signer, err := preview.NewSigner(privPEM)
	if err != nil {
		fmt.Println("Error loading private key:", err)
		os.Exit(1)
	}

	// Define Lipgloss styles
	promptStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
	outputStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	fmt.Println("Enter post ids one by one. Type 'quit' to exit.")

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(promptStyle.Render("Post id: "))

		if !scanner.Scan() {
			break // Exit on EOF (e.g., Ctrl+D or Ctrl+Z)
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "quit" {
			break
		}

		id, err := strconv.ParseInt(input, 10, 64)
		if err != nil || id <= 0 {
			fmt.Println(errorStyle.Render("Error: post id must be a positive integer"))
			continue
		}

		token, err := signer.Mint(model.PostID(id), *ttl)
		if err != nil {
			fmt.Println(errorStyle.Render("Error: " + err.Error()))
			continue
		}

		fmt.Println(outputStyle.Render("Token: " + token))
		fmt.Println(outputStyle.Render(fmt.Sprintf("URL:   /api/posts/%d/preview?token=%s", id, token)))
	}

	if err := scanner.Err(); err != nil {
		fmt.Println("Error reading input:", err)
	}
}

func generateKeys() {
	pubPEM, privPEM, err := preview.GenerateKeyPair()
	if err != nil {
		fmt.Println("Error generating key pair:", err)
		os.Exit(1)
	}

	if err := os.WriteFile("privkey.pem", privPEM, 0600); err != nil {
		fmt.Println("Error writing privkey.pem:", err)
		os.Exit(1)
	}
	if err := os.WriteFile("pubkey.pem", pubPEM, 0644); err != nil {
		fmt.Println("Error writing pubkey.pem:", err)
		os.Exit(1)
	}

	fmt.Println("Wrote privkey.pem and pubkey.pem.")
}
