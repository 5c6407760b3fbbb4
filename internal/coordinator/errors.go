// Copyright (C) 2024 mm-cache authors.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package coordinator

import "errors"

// Sentinel errors surfaced by Complete. The request server answers
// INVALID_REQUEST for any error returned by Complete.
var (
	// ErrUnknownIdentifier is returned by Complete for an id with no
	// residency entry: never requested, still pending admission,
	// evicted, or whose load failed.
	ErrUnknownIdentifier = errors.New("coordinator: unknown identifier")
	// ErrNotPinned is returned by Complete for an id whose pin count
	// is already 0; decrementing it further would drive a pin below
	// zero, treated as a protocol error rather than a silent no-op.
	ErrNotPinned = errors.New("coordinator: identifier is not pinned")
)
