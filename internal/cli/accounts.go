package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"skyprefs/internal/session"
	"skyprefs/pkg/clients/bsky"
)

// AccountsFile is the on-disk list of signed-in accounts.
type AccountsFile struct {
	Current  string            `yaml:"current,omitempty"`
	Accounts []session.Account `yaml:"accounts"`
}

func DefaultAccountsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".skyprefs", "accounts.yaml"), nil
}

// LoadAccounts reads path. A missing file is an empty list.
func LoadAccounts(path string) (AccountsFile, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return AccountsFile{}, nil
	}
	if err != nil {
		return AccountsFile{}, err
	}
	var f AccountsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return AccountsFile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

func SaveAccounts(path string, f AccountsFile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Select finds an account by handle or DID. An empty name picks the current
// account, or the only one when there is just one.
func (f AccountsFile) Select(name string) (session.Account, bool) {
	if name == "" {
		name = f.Current
	}
	if name == "" && len(f.Accounts) == 1 {
		return f.Accounts[0], true
	}
	name = strings.TrimPrefix(name, "@")
	for _, a := range f.Accounts {
		if a.DID == name || strings.EqualFold(a.Handle, name) {
			return a, true
		}
	}
	return session.Account{}, false
}

// Upsert replaces the account with the same DID or appends it.
func (f *AccountsFile) Upsert(acc session.Account) {
	for i, a := range f.Accounts {
		if a.DID == acc.DID {
			f.Accounts[i] = acc
			return
		}
	}
	f.Accounts = append(f.Accounts, acc)
}

// Remove drops the account with the given DID or handle.
func (f *AccountsFile) Remove(name string) bool {
	acc, ok := f.Select(name)
	if !ok {
		return false
	}
	out := f.Accounts[:0]
	for _, a := range f.Accounts {
		if a.DID != acc.DID {
			out = append(out, a)
		}
	}
	f.Accounts = out
	if f.Current == acc.DID || strings.EqualFold(f.Current, acc.Handle) {
		f.Current = ""
	}
	return true
}

// ApplySession copies refreshed session data onto the stored account.
func (f *AccountsFile) ApplySession(s bsky.Session) bool {
	for i, a := range f.Accounts {
		if a.DID != s.DID {
			continue
		}
		a.AccessJwt = s.AccessJwt
		a.RefreshJwt = s.RefreshJwt
		if s.Handle != "" {
			a.Handle = s.Handle
		}
		if s.Email != "" {
			a.Email = s.Email
		}
		a.EmailConfirmed = s.EmailConfirmed
		a.EmailAuthFactor = s.EmailAuthFactor
		active := s.Active
		a.Active = &active
		a.Status = s.Status
		f.Accounts[i] = a
		return true
	}
	return false
}
