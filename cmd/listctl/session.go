package main

import (
	"errors"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

const tokenFile = "token"

// loadToken returns the saved session token, or "" when not logged in.
func loadToken(fs billy.Filesystem) (string, error) {
	b, err := util.ReadFile(fs, tokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func saveToken(fs billy.Filesystem, token string) error {
	return util.WriteFile(fs, tokenFile, []byte(token+"\n"), 0o600)
}

func clearToken(fs billy.Filesystem) error {
	err := fs.Remove(tokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
