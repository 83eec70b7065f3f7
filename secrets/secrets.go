// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package secrets keeps reasoner credentials in locked memory for the
// life of the process.
//
// Keys are held in memguard enclaves: encrypted at rest, decrypted into
// an mlocked, guard-paged buffer only for the moment a request needs
// them, and wiped on shutdown. Systems without a sufficient mlock limit
// refuse to start unless the operator explicitly accepts plain memory
// via MODULEFORGE_INSECURE_MEMORY.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"
)

const (
	// MaxKeySize bounds a stored secret. API keys and tokens are small;
	// anything larger is a caller bug.
	MaxKeySize = 8 * 1024

	// MinMlockLimitKB is the smallest mlock limit the secure path
	// accepts. It covers the enclave, its guard pages, and the
	// transient open buffer.
	MinMlockLimitKB = 64

	// EnvInsecureMemory, when set to 1 or true, allows falling back to
	// ordinary Go memory on systems with insufficient mlock limits.
	EnvInsecureMemory = "MODULEFORGE_INSECURE_MEMORY"
)

var (
	// initOnce guards the one-time memguard setup.
	initOnce sync.Once

	// mlockSufficient reports whether locked memory is usable.
	mlockSufficient bool

	// mlockLimitKB is the detected limit, -1 when unlimited.
	mlockLimitKB int64
)

// Vault holds one secret for the life of the process.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Vault struct {
	mu        sync.Mutex
	enclave   *memguard.Enclave
	plain     string
	fallback  bool
	destroyed bool
}

// NewVault seals a secret into locked memory.
//
// Description:
//
//	On systems with a sufficient mlock limit the secret is copied into
//	an mlocked buffer and sealed into an encrypted enclave. Otherwise
//	the constructor fails with ErrInsecureMemory unless
//	MODULEFORGE_INSECURE_MEMORY accepts the plain-memory fallback.
//	The caller's copy of the secret stays in ordinary memory; pass it
//	straight from its source and drop it.
//
// Inputs:
//
//	secret - The credential to protect. Must be non-empty and at most
//	         MaxKeySize bytes.
//
// Outputs:
//
//	*Vault - The sealed vault
//	error - Non-nil when the secret is unusable or locked memory is
//	        unavailable without the fallback
func NewVault(secret string) (*Vault, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if len(secret) > MaxKeySize {
		return nil, fmt.Errorf("secret of %d bytes exceeds the %d byte limit",
			len(secret), MaxKeySize)
	}

	Init()

	if !mlockSufficient {
		if !insecureAllowed() {
			return nil, fmt.Errorf("%w: have %d KB, need %d KB; raise the limit or set %s=1",
				ErrInsecureMemory, mlockLimitKB, MinMlockLimitKB, EnvInsecureMemory)
		}
		slog.Warn("SECURITY: secret held in plain memory, it may be swapped to disk",
			"mlock_limit_kb", mlockLimitKB,
			"required_kb", MinMlockLimitKB,
		)
		return &Vault{plain: secret, fallback: true}, nil
	}

	// NewBufferFromBytes wipes its source slice; the string conversion
	// copy is the one being protected here.
	buf := memguard.NewBufferFromBytes([]byte(secret))
	return &Vault{enclave: buf.Seal()}, nil
}

// FromEnv seals the named environment variable and scrubs it from this
// process's environment.
func FromEnv(name string) (*Vault, error) {
	value := os.Getenv(name)
	if value == "" {
		return nil, fmt.Errorf("%w: %s is not set", ErrNoSecret, name)
	}
	v, err := NewVault(value)
	if err != nil {
		return nil, err
	}
	if err := os.Unsetenv(name); err != nil {
		slog.Warn("could not scrub secret from environment", "name", name)
	}
	return v, nil
}

// APIKey opens the vault and returns a copy of the secret.
//
// The copy lives in ordinary memory; callers must not retain it beyond
// the request that needed it. Satisfies llm.KeySource.
func (v *Vault) APIKey() (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.destroyed {
		return "", ErrDestroyed
	}
	if v.fallback {
		return v.plain, nil
	}

	buf, err := v.enclave.Open()
	if err != nil {
		return "", fmt.Errorf("open secret enclave: %w", err)
	}
	key := string(buf.Bytes())
	buf.Destroy()
	return key, nil
}

// Secure reports whether the secret is held in locked memory.
func (v *Vault) Secure() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.fallback && !v.destroyed
}

// Destroy drops the secret. Idempotent.
func (v *Vault) Destroy() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.destroyed {
		return
	}
	v.enclave = nil
	v.plain = ""
	v.destroyed = true
}

// Init performs the one-time memguard setup: interrupt trapping so
// sensitive buffers are wiped on SIGINT/SIGTERM, and the mlock limit
// probe. Constructors call it implicitly; calling it early from main
// surfaces the security posture in the startup log.
func Init() {
	initOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, mlockLimitKB = checkMlockLimit()
		if mlockSufficient {
			slog.Info("secure memory initialized",
				"mlock_limit_kb", mlockLimitKB,
				"required_kb", MinMlockLimitKB,
			)
		} else {
			slog.Warn("mlock limit insufficient for secure memory",
				"mlock_limit_kb", mlockLimitKB,
				"required_kb", MinMlockLimitKB,
				"fallback_env", EnvInsecureMemory,
			)
		}
	})
}

// MlockAvailable reports whether locked memory is usable and the
// detected limit in KB (-1 when unlimited).
func MlockAvailable() (bool, int64) {
	Init()
	return mlockSufficient, mlockLimitKB
}

// Purge wipes every memguard allocation. Call during graceful shutdown;
// all vaults are unusable afterwards.
func Purge() {
	memguard.Purge()
	slog.Info("purged secure memory")
}

// checkMlockLimit probes RLIMIT_MEMLOCK. An unreadable limit is treated
// as sufficient; memguard will surface the real failure on allocation.
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("could not determine mlock limit", "error", err.Error())
		return true, -1
	}
	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}
	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= MinMlockLimitKB, limitKB
}

// insecureAllowed reports whether the operator accepted plain memory.
func insecureAllowed() bool {
	switch os.Getenv(EnvInsecureMemory) {
	case "1", "true":
		return true
	default:
		return false
	}
}
