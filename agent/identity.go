package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
)

// SessionIdentity derives a stable client session ID for this machine.
// The ID survives restarts and reinstalls of the agent binary, so the
// relay sees reconnects from the same machine as the same session.
type SessionIdentity struct {
	cacheDir string
}

// NewSessionIdentity creates an identity source caching under the user
// cache directory.
func NewSessionIdentity() *SessionIdentity {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return &SessionIdentity{cacheDir: filepath.Join(dir, "screenrelay")}
}

// SessionID returns the cached session ID, generating one if needed
func (si *SessionIdentity) SessionID() (string, error) {
	if id, err := si.readCached(); err == nil && id != "" {
		return id, nil
	}

	id, err := si.generate()
	if err != nil {
		return "", err
	}
	if err := si.writeCached(id); err != nil {
		// Still usable, just regenerated next run
		fmt.Fprintf(os.Stderr, "warning: could not cache session id: %v\n", err)
	}
	return id, nil
}

// generate hashes stable host identifiers into a compact hex ID
func (si *SessionIdentity) generate() (string, error) {
	var parts []string

	if hostname, err := os.Hostname(); err == nil {
		parts = append(parts, hostname)
	}
	if info, err := host.Info(); err == nil && info.HostID != "" {
		parts = append(parts, info.HostID)
	}
	if runtime.GOOS == "linux" {
		if id := readLinuxMachineID(); id != "" {
			parts = append(parts, id)
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no stable host identifiers found")
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "-")))
	return hex.EncodeToString(hash[:16]), nil
}

func readLinuxMachineID() string {
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if data, err := os.ReadFile(path); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}

func (si *SessionIdentity) readCached() (string, error) {
	data, err := os.ReadFile(filepath.Join(si.cacheDir, "session-id"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (si *SessionIdentity) writeCached(id string) error {
	if err := os.MkdirAll(si.cacheDir, 0700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(si.cacheDir, "session-id"), []byte(id), 0600)
}
