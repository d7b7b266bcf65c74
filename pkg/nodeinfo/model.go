/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package nodeinfo

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// MeridianVersion is the version of the server software. It may be overridden at build time.
var MeridianVersion = "latest"

const (
	meridianName       = "meridian"
	meridianRepository = "https://github.com/meridianfed/meridian"

	activityPubProtocol = "activitypub"
)

// Version specifies the version of the NodeInfo data.
type Version = string

const (
	// V2_0 is NodeInfo version 2.0 (http://nodeinfo.diaspora.software/ns/schema/2.0#).
	V2_0 Version = "2.0"

	// V2_1 is NodeInfo version 2.1 (http://nodeinfo.diaspora.software/ns/schema/2.1#).
	V2_1 Version = "2.1"
)

// NodeInfo contains NodeInfo data.
type NodeInfo struct {
	Version           string                 `json:"version"`
	Software          Software               `json:"software"`
	Protocols         []string               `json:"protocols"`
	Services          Services               `json:"services"`
	OpenRegistrations bool                   `json:"openRegistrations"`
	Usage             Usage                  `json:"usage"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`

	// Raw is the document exactly as fetched. It is only populated by the client.
	Raw json.RawMessage `json:"-"`
}

// Software contains information about the server application, including version.
type Software struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Repository string `json:"repository,omitempty"`
}

// Services contains the third-party services that this server connects to. (Currently not used.)
type Services struct {
	Inbound  []string `json:"inbound"`
	Outbound []string `json:"outbound"`
}

// Usage contains usage statistics, including the number of posts and comments posted by local users.
type Usage struct {
	Users         Users `json:"users"`
	LocalPosts    int   `json:"localPosts"`
	LocalComments int   `json:"localComments"`
}

// Users contains statistics about the users of this server.
type Users struct {
	Total int `json:"total"`
}

// softwareNameRegex is the pattern that the NodeInfo schema imposes on software names.
var softwareNameRegex = regexp.MustCompile("^[a-z0-9-]+$")

// Validate checks the document against the NodeInfo 2.x schema.
func (n *NodeInfo) Validate() error {
	if n.Version != V2_0 && n.Version != V2_1 {
		return fmt.Errorf("unsupported version [%s]", n.Version)
	}

	if !softwareNameRegex.MatchString(n.Software.Name) {
		return fmt.Errorf("invalid software name [%s]", n.Software.Name)
	}

	if _, err := ParseSemVer(n.Software.Version); err != nil {
		return fmt.Errorf("invalid software version [%s]: %w", n.Software.Version, err)
	}

	if len(n.Protocols) == 0 {
		return fmt.Errorf("no protocols specified")
	}

	if n.Usage.Users.Total < 0 || n.Usage.LocalPosts < 0 || n.Usage.LocalComments < 0 {
		return fmt.Errorf("usage counts must not be negative")
	}

	return nil
}

// applyDefaults replaces missing or malformed fields with reasonable defaults.
func (n *NodeInfo) applyDefaults() {
	if n.Version != V2_0 && n.Version != V2_1 {
		n.Version = V2_0
	}

	if !softwareNameRegex.MatchString(n.Software.Name) {
		n.Software.Name = "unknown"
	}

	if _, err := ParseSemVer(n.Software.Version); err != nil {
		n.Software.Version = "0.0.0"
	}

	if len(n.Protocols) == 0 {
		n.Protocols = []string{activityPubProtocol}
	}

	if n.Usage.Users.Total < 0 {
		n.Usage.Users.Total = 0
	}

	if n.Usage.LocalPosts < 0 {
		n.Usage.LocalPosts = 0
	}

	if n.Usage.LocalComments < 0 {
		n.Usage.LocalComments = 0
	}
}
