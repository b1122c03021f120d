// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bamsplit

import (
	"github.com/grailbio/base/errors"
)

// IsMalformed reports whether err was caused by a bgzf block that cannot be
// decompressed, or by a BAM file whose structure cannot be trusted.
func IsMalformed(err error) bool { return errors.Is(errors.Integrity, err) }

// IsIndexUnavailable reports whether err was caused by a missing or
// unreadable index when one was required.
func IsIndexUnavailable(err error) bool { return errors.Is(errors.Unavailable, err) }

// IsInvalidInterval reports whether err was caused by an interval that names
// an unknown reference or has start > end.
func IsInvalidInterval(err error) bool { return errors.Is(errors.Invalid, err) }
