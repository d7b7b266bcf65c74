/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package nodeinfo

import (
	"fmt"
	"regexp"
	"strconv"
)

// SemVer is a semantic version (https://semver.org) as used for the software
// versions advertised in NodeInfo documents.
type SemVer struct {
	Major      uint64
	Minor      uint64
	Patch      uint64
	PreRelease string
	Build      string
}

var semVerRegex = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)(?:-([0-9A-Za-z\-.]+))?(?:\+([0-9A-Za-z\-.]+))?$`)

// ParseSemVer parses a semantic version string. A leading 'v' is accepted and
// ignored.
func ParseSemVer(version string) (*SemVer, error) {
	matches := semVerRegex.FindStringSubmatch(version)
	if matches == nil {
		return nil, fmt.Errorf("invalid semantic version [%s]", version)
	}

	major, err := strconv.ParseUint(matches[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid major version [%s]: %w", matches[1], err)
	}

	minor, err := strconv.ParseUint(matches[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid minor version [%s]: %w", matches[2], err)
	}

	patch, err := strconv.ParseUint(matches[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid patch version [%s]: %w", matches[3], err)
	}

	return &SemVer{
		Major:      major,
		Minor:      minor,
		Patch:      patch,
		PreRelease: matches[4],
		Build:      matches[5],
	}, nil
}

// FormatSemVer returns the canonical string form of the given version.
func FormatSemVer(v *SemVer) string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)

	if v.PreRelease != "" {
		s += "-" + v.PreRelease
	}

	if v.Build != "" {
		s += "+" + v.Build
	}

	return s
}

// String returns the canonical string form of the version.
func (v *SemVer) String() string {
	return FormatSemVer(v)
}
