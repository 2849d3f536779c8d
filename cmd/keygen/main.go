package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

func main() {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read random bytes: %v\n", err)
		os.Exit(1)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read random bytes: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Add this to your config.yaml:")
	fmt.Printf("csrf:\n")
	fmt.Printf("  secret: \"%s\"\n", hex.EncodeToString(secret))
	fmt.Printf("  secret_salt: \"%s\"\n", hex.EncodeToString(salt))
	fmt.Println("\nOr export as environment variables:")
	fmt.Printf("  RESTKIT_CSRF__SECRET=%s\n", hex.EncodeToString(secret))
	fmt.Printf("  RESTKIT_CSRF__SECRET_SALT=%s\n", hex.EncodeToString(salt))
}
