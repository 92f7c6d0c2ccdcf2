package runfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Role says which side of the substrate published a record.
type Role string

const (
	RoleDaemon Role = "daemon"
	RoleClient Role = "client"
)

const filePrefix = "custod"

var (
	// ErrNoDaemon means discovery found no usable daemon record.
	ErrNoDaemon = errors.New("no daemon run file")
	// ErrAlreadyRunning means a live daemon already holds the registry slot.
	ErrAlreadyRunning = errors.New("daemon already running")
	// ErrAlreadyRegistered means a live client already holds the user's slot.
	ErrAlreadyRegistered = errors.New("client already registered")
)

var pidAliveFn = func(pid int) bool {
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// Record is one published endpoint in the run-file registry.
type Record struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
	Role    Role   `json:"type"`
	PID     int    `json:"pid"`
	User    string `json:"user,omitempty"` // set for client records

	// ModTime is the registry file's modification time, filled on read.
	ModTime time.Time `json:"-"`
}

// FileName returns the registry file name for the record. The daemon name is
// fixed; client names carry the username so each user gets one slot.
func (r Record) FileName() string {
	if r.Role == RoleDaemon {
		return filePrefix + ".json"
	}
	return filePrefix + "-" + r.User + ".json"
}

// Addr returns the record's dialable host:port.
func (r Record) Addr() string {
	return net.JoinHostPort(r.Address, strconv.Itoa(r.Port))
}

// Alive reports whether the publishing process still exists.
func (r Record) Alive() bool {
	return r.PID > 0 && pidAliveFn(r.PID)
}

// Publish writes rec into the registry under the exclusive registry lock.
// A live record published by another process blocks the publish with
// ErrAlreadyRunning or ErrAlreadyRegistered; stale and malformed records are
// overwritten.
func Publish(dir string, rec Record) error {
	if rec.Role == RoleClient && rec.User == "" {
		return errors.New("client record without user")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating run dir: %w", err)
	}

	release, err := lockRegistry(dir)
	if err != nil {
		return err
	}
	defer release()

	path := filepath.Join(dir, rec.FileName())
	if existing, err := Read(path); err == nil {
		if existing.PID != rec.PID && existing.Alive() {
			if rec.Role == RoleDaemon {
				return fmt.Errorf("pid %d holds %s: %w", existing.PID, path, ErrAlreadyRunning)
			}
			return fmt.Errorf("pid %d holds %s: %w", existing.PID, path, ErrAlreadyRegistered)
		}
	}
	return writeRecord(path, rec)
}

// Withdraw removes rec's registry file. A missing file is not an error.
func Withdraw(dir string, rec Record) error {
	release, err := lockRegistry(dir)
	if err != nil {
		return err
	}
	defer release()

	if err := os.Remove(filepath.Join(dir, rec.FileName())); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing run file: %w", err)
	}
	return nil
}

// Read parses a single registry file.
func Read(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("parsing run file %s: %w", path, err)
	}
	if info, err := os.Stat(path); err == nil {
		rec.ModTime = info.ModTime()
	}
	return rec, nil
}

// Scan returns every parseable record in the registry. Malformed files are
// skipped, not fatal; a half-written or corrupt record must never block
// discovery.
func Scan(dir string) ([]Record, error) {
	matches, err := filepath.Glob(filepath.Join(dir, filePrefix+"*.json"))
	if err != nil {
		return nil, err
	}
	var recs []Record
	for _, path := range matches {
		rec, err := Read(path)
		if err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Discover returns the first daemon record whose process is alive.
func Discover(dir string) (Record, error) {
	recs, err := Scan(dir)
	if err != nil {
		return Record{}, err
	}
	for _, rec := range recs {
		if rec.Role == RoleDaemon && rec.Alive() {
			return rec, nil
		}
	}
	return Record{}, fmt.Errorf("%w in %s", ErrNoDaemon, dir)
}

func writeRecord(path string, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding run file: %w", err)
	}

	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+filePrefix+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp run file: %w", err)
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := tmpFile.Chmod(0o644); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("setting run file permissions: %w", err)
	}
	if _, err := tmpFile.Write(payload); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("writing temp run file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("syncing temp run file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp run file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing run file: %w", err)
	}
	cleanup = false
	return nil
}
