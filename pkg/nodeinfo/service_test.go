/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package nodeinfo

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestService(t *testing.T) {
	const (
		numUsers    = 3
		numPosts    = 10
		numComments = 5
	)

	stats := StaticStats{
		TotalUsers:    numUsers,
		LocalPosts:    numPosts,
		LocalComments: numComments,
	}

	s := NewService(Software{Version: "0.9.9"}, 50*time.Millisecond, stats)
	require.NotNil(t, s)

	s.Start()
	defer s.Stop()

	time.Sleep(500 * time.Millisecond)

	nodeInfo := s.GetNodeInfo(V2_0)
	require.NotNil(t, nodeInfo)

	require.Equal(t, "meridian", nodeInfo.Software.Name)
	require.Equal(t, "0.9.9", nodeInfo.Software.Version)
	require.Equal(t, "", nodeInfo.Software.Repository)
	require.False(t, nodeInfo.OpenRegistrations)
	require.Empty(t, nodeInfo.Services.Inbound)
	require.Empty(t, nodeInfo.Services.Outbound)
	require.Len(t, nodeInfo.Protocols, 1)
	require.Equal(t, activityPubProtocol, nodeInfo.Protocols[0])
	require.Empty(t, nodeInfo.Metadata)
	require.Equal(t, numUsers, nodeInfo.Usage.Users.Total)
	require.Equal(t, numPosts, nodeInfo.Usage.LocalPosts)
	require.Equal(t, numComments, nodeInfo.Usage.LocalComments)

	nodeInfo = s.GetNodeInfo(V2_1)
	require.NotNil(t, nodeInfo)
	require.Equal(t, "meridian", nodeInfo.Software.Name)
	require.Equal(t, "0.9.9", nodeInfo.Software.Version)
	require.Equal(t, meridianRepository, nodeInfo.Software.Repository)
	require.Equal(t, numUsers, nodeInfo.Usage.Users.Total)
	require.Equal(t, numPosts, nodeInfo.Usage.LocalPosts)
	require.Equal(t, numComments, nodeInfo.Usage.LocalComments)
}

func TestService_CustomSoftware(t *testing.T) {
	software := Software{
		Name:       "myapp",
		Version:    "1.2.3",
		Repository: "https://example.com/myapp",
	}

	s := NewService(software, time.Second, StaticStats{TotalUsers: 1})
	require.NotNil(t, s)

	nodeInfo := s.GetNodeInfo(V2_1)
	require.Equal(t, "myapp", nodeInfo.Software.Name)
	require.Equal(t, "1.2.3", nodeInfo.Software.Version)
	require.Equal(t, "https://example.com/myapp", nodeInfo.Software.Repository)

	nodeInfo = s.GetNodeInfo(V2_0)
	require.Equal(t, "myapp", nodeInfo.Software.Name)
	require.Empty(t, nodeInfo.Software.Repository)
}

func TestService_StatsError(t *testing.T) {
	s := NewService(Software{}, 50*time.Millisecond, &failingStatsRetriever{})
	require.NotNil(t, s)

	s.Start()
	defer s.Stop()

	time.Sleep(200 * time.Millisecond)

	// Stats retrieval errors are logged and the previous stats are retained.
	nodeInfo := s.GetNodeInfo(V2_0)
	require.NotNil(t, nodeInfo)
	require.Equal(t, 0, nodeInfo.Usage.Users.Total)
	require.Equal(t, 0, nodeInfo.Usage.LocalPosts)
	require.Equal(t, 0, nodeInfo.Usage.LocalComments)
}

type failingStatsRetriever struct{}

func (r *failingStatsRetriever) GetStats() (*Stats, error) {
	return nil, errors.New("injected stats error")
}
