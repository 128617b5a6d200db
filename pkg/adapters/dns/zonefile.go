// Package dns is the DNS zone adapter (C3): a flat, append-only zone file
// consumed by an external DNS service. Idempotent on the (name, address)
// pair.
package dns

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kanbanhq/controlplane/pkg/apierr"
)

// Adapter writes A-record lines to a single plain-text zone file.
type Adapter struct {
	mu      sync.Mutex
	path    string
	prodMode bool
}

// New returns an adapter writing to zoneFilePath. production enables the
// propagation-wait behavior of WaitForPropagation; development returns
// immediately after a brief sleep.
func New(zoneFilePath string, production bool) *Adapter {
	return &Adapter{path: zoneFilePath, prodMode: production}
}

func recordLine(name, address string) string {
	return fmt.Sprintf("%-20s IN  A       %s\n", name, address)
}

// AddRecord appends an A record for name -> address, unless an identical
// (name, address) pair is already present.
func (a *Adapter) AddRecord(name, address string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	exists, err := a.hasRecord(name, address)
	if err != nil {
		return apierr.Transient("read dns zone file", err)
	}
	if exists {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return apierr.Transient("create zone file directory", err)
	}
	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return apierr.Transient("open zone file", err)
	}
	defer f.Close()

	if _, err := f.WriteString(recordLine(name, address)); err != nil {
		return apierr.Transient("append dns record", err)
	}
	return nil
}

// RemoveRecord rewrites the zone file without any line matching name,
// regardless of the address on record.
func (a *Adapter) RemoveRecord(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	lines, err := a.readLines()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apierr.Transient("read dns zone file", err)
	}

	var kept []string
	for _, line := range lines {
		if recordName(line) == name {
			continue
		}
		kept = append(kept, line)
	}

	return a.writeLines(kept)
}

// HasRecord reports whether any (name, address) pair is recorded; if
// address is empty, matches on name alone.
func (a *Adapter) HasRecord(name, address string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hasRecord(name, address)
}

func (a *Adapter) hasRecord(name, address string) (bool, error) {
	lines, err := a.readLines()
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	for _, line := range lines {
		n, addr := recordName(line), recordAddress(line)
		if n == name && (address == "" || addr == address) {
			return true, nil
		}
	}
	return false, nil
}

func (a *Adapter) readLines() ([]string, error) {
	f, err := os.Open(a.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, sc.Err()
}

func (a *Adapter) writeLines(lines []string) error {
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return apierr.Transient("rewrite zone file", err)
	}
	defer f.Close()
	for _, l := range lines {
		if _, err := f.WriteString(l + "\n"); err != nil {
			return apierr.Transient("write zone file line", err)
		}
	}
	return nil
}

func recordName(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func recordAddress(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// WaitForPropagation waits for the record to be externally resolvable.
// Development mode is a stubbed brief sleep;
// production mode polls the zone file's own presence as a stand-in for
// the external DNS service converging, up to timeout.
func (a *Adapter) WaitForPropagation(name string, timeout time.Duration) error {
	if !a.prodMode {
		time.Sleep(200 * time.Millisecond)
		return nil
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ok, err := a.HasRecord(name, "")
		if err != nil {
			return apierr.Transient("poll dns propagation", err)
		}
		if ok {
			return nil
		}
		time.Sleep(2 * time.Second)
	}
	return apierr.Transient(fmt.Sprintf("dns record for %s did not propagate within %s", name, timeout), nil)
}
