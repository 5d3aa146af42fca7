package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"tools.zach/dev/sigrelay/internal/paths"
)

// DataPaths aliases [paths.DataDir] into the main package.
type DataPaths = paths.DataDir

// errNotRunning is returned by readPID when no daemon holds the PID file.
var errNotRunning = errors.New("daemon is not running")

// ///////////////////////////////////////////////
// PID Management
// ///////////////////////////////////////////////

// pidToken generates a random 16-character hex token used to prove ownership
// of the PID file, so [removePID] only deletes the file if this instance wrote it.
func pidToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// writePID creates or opens the PID file, acquires an advisory lock, and
// writes "PID:TOKEN". The returned file must stay open for the lifetime of
// the daemon to hold the lock; pass it to [removePID] on shutdown.
func writePID(dp DataPaths, token string) (*os.File, error) {
	f, err := os.OpenFile(dp.PID(), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock PID file: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("truncate PID file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d:%s", os.Getpid(), token); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return f, nil
}

// removePID releases the lock, closes f, and removes the PID file only if
// the stored token matches.
func removePID(dp DataPaths, token string, f *os.File) {
	if f != nil {
		_ = unlockFile(f)
		f.Close()
	}
	data, err := os.ReadFile(dp.PID())
	if err != nil {
		return
	}
	if _, tok, ok := parsePIDFile(data); ok && tok == token {
		os.Remove(dp.PID())
	}
}

// checkStalePID reports whether another daemon holds the PID file lock. A
// file whose lock can be taken belongs to a dead instance and is removed.
func checkStalePID(dp DataPaths) (alive bool, pid int) {
	f, err := os.OpenFile(dp.PID(), os.O_RDWR, 0o600)
	if err != nil {
		return false, 0
	}

	if lockErr := lockFile(f); lockErr != nil {
		data, _ := os.ReadFile(dp.PID())
		f.Close()
		pid, _, _ = parsePIDFile(data)
		return true, pid
	}

	_ = unlockFile(f)
	f.Close()
	os.Remove(dp.PID())
	return false, 0
}

// readPID returns the PID of the running daemon, or errNotRunning.
func readPID(dp DataPaths) (int, error) {
	alive, pid := checkStalePID(dp)
	if !alive {
		return 0, errNotRunning
	}
	if pid <= 0 {
		return 0, fmt.Errorf("PID file %s is locked but unreadable", dp.PID())
	}
	return pid, nil
}

// parsePIDFile splits "PID:TOKEN" content.
func parsePIDFile(data []byte) (pid int, token string, ok bool) {
	head, tail, found := strings.Cut(strings.TrimSpace(string(data)), ":")
	p, err := strconv.Atoi(head)
	if err != nil {
		return 0, "", false
	}
	return p, tail, found
}
