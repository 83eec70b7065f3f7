// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package secrets

import "errors"

var (
	// ErrNoSecret indicates the requested secret was empty or unset.
	ErrNoSecret = errors.New("no secret available")

	// ErrDestroyed indicates the vault was already wiped.
	ErrDestroyed = errors.New("vault destroyed")

	// ErrInsecureMemory indicates the mlock limit is too low for locked
	// memory and the insecure fallback was not enabled.
	ErrInsecureMemory = errors.New("mlock limit insufficient for secure memory")
)
