// Package main prints the bcrypt hash of an account password read from
// stdin, for seeding users rows by hand without running the server.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/pwd-registry/pwd-registry/internal/auth"
)

func main() {
	cost := flag.Int("cost", auth.DefaultBcryptCost, "bcrypt cost")
	flag.Parse()

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		log.Fatalf("read password: %v", err)
	}
	hash, err := auth.HashPassword(strings.TrimRight(line, "\r\n"), *cost)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	fmt.Println(hash)
}
