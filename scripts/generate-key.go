// Package main is a development utility that prints a random PWDR_JWT_SECRET
// and a seed ADMIN account with a random password and its bcrypt hash, as a
// ready-to-run SQL INSERT. Do not use the generated account in production;
// create real accounts with `server create-user`.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		log.Fatal(err)
	}

	pw := make([]byte, 18)
	if _, err := rand.Read(pw); err != nil {
		log.Fatal(err)
	}
	password := base64.RawURLEncoding.EncodeToString(pw)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("==========================================================")
	fmt.Println("Development credentials")
	fmt.Println("==========================================================")
	fmt.Printf("\nPWDR_JWT_SECRET=%s\n", hex.EncodeToString(secret))
	fmt.Printf("\nID number: ADMIN-0001\nPassword:  %s\n", password)
	fmt.Println("\n==========================================================")
	fmt.Println("SQL Insert:")
	fmt.Println("==========================================================")
	fmt.Printf(`
INSERT INTO users (id, id_number, first_name, last_name, password_hash, role, status)
VALUES ('%s', 'ADMIN-0001', 'Dev', 'Admin', '%s', 'ADMIN', 'ACTIVE')
ON CONFLICT (id_number) DO UPDATE SET password_hash = EXCLUDED.password_hash;
`, uuid.New().String(), string(hash))
	fmt.Println("==========================================================")
}
