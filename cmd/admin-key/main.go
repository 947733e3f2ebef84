// Command admin-key hashes an operator key for the GUARD_ADMIN_KEY_HASH
// environment variable:
//
//	admin-key <key>
//	echo -n <key> | admin-key
//
// The PHC-encoded argon2id hash is printed to stdout; the key itself is
// never stored.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"game-guard/internal/hashing"
)

func main() {
	key, err := readKey()
	if err != nil {
		fmt.Fprintln(os.Stderr, "admin-key:", err)
		os.Exit(1)
	}

	hasher := hashing.NewHasher(hashing.DefaultParams())
	encoded, err := hasher.Hash(key)
	if err != nil {
		fmt.Fprintln(os.Stderr, "admin-key:", err)
		os.Exit(1)
	}
	fmt.Println(encoded)
}

func readKey() (string, error) {
	if len(os.Args) > 1 {
		if key := strings.TrimSpace(os.Args[1]); key != "" {
			return key, nil
		}
		return "", fmt.Errorf("key argument is empty")
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading key from stdin: %w", err)
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return "", fmt.Errorf("no key provided; pass it as an argument or on stdin")
	}
	return key, nil
}
