package hosts

import (
	"testing"

	"github.com/stretchr/testify/require"

	"checkengine/internal/cluster"
	"checkengine/internal/config"
	"checkengine/internal/domain"
	"checkengine/internal/params"
)

func testConfig() config.Config {
	return config.Config{
		Host: []config.HostConfig{
			{Name: "db01", OnlyFrom: []string{"10.0.0.1"}, ServiceLevel: 10},
			{Name: "db02"},
			{Name: "web01", Service: []config.StaticServiceConfig{{Plugin: "uptime", Description: "Uptime"}}},
		},
		Cluster: []config.ClusterConfig{{
			Name:  "dbc",
			Nodes: []string{"db02", "db01"},
			Service: []config.ClusterServiceRule{
				{Pattern: "Filesystem /var*", Mode: "failover", PrimaryNode: "db01", LevelsAdditionalNodesCount: []float64{1, 2}},
				{Pattern: "MySQL*", Mode: "worst"},
			},
		}},
	}
}

func TestCacheTopology(t *testing.T) {
	t.Parallel()

	c, err := New(testConfig())
	require.NoError(t, err)

	require.Equal(t, []domain.HostName{"db01", "db02", "dbc", "web01"}, c.Names())
	require.True(t, c.IsCluster("dbc"))
	require.Equal(t, []domain.HostName{"db01", "db02"}, c.Nodes("dbc"))
	require.Equal(t, []domain.HostName{"dbc"}, c.ClustersOf("db01"))
	require.Len(t, c.StaticServices("web01"), 1)
	require.Equal(t, domain.OriginStatic, c.StaticServices("web01")[0].Origin)
}

func TestEffectiveHostAndClusterConfig(t *testing.T) {
	t.Parallel()

	c, err := New(testConfig())
	require.NoError(t, err)

	require.Equal(t, domain.HostName("dbc"), c.EffectiveHost("db01", "Filesystem /var/lib"))
	require.Equal(t, domain.HostName("dbc"), c.EffectiveHost("db02", "mysql status"))
	require.Equal(t, domain.HostName("db01"), c.EffectiveHost("db01", "Filesystem /"))
	require.Equal(t, domain.HostName("web01"), c.EffectiveHost("web01", "Filesystem /var"))

	cfg := c.ClusteredServiceConfiguration("dbc", "Filesystem /var")
	require.Equal(t, cluster.ModeFailover, cfg.Mode)
	require.Equal(t, domain.HostName("db01"), cfg.PrimaryNode)
	require.Equal(t, &[2]float64{1, 2}, cfg.LevelsAdditionalNodes)

	require.Equal(t, cluster.ModeNative, c.ClusteredServiceConfiguration("dbc", "Uptime").Mode)
}

func TestClusterAndNodeServices(t *testing.T) {
	t.Parallel()

	c, err := New(testConfig())
	require.NoError(t, err)

	fsVar := domain.ConfiguredService{CheckPluginName: "df", Item: "/var", Description: "Filesystem /var"}
	fsRoot := domain.ConfiguredService{CheckPluginName: "df", Item: "/", Description: "Filesystem /"}
	nodeServices := map[domain.HostName][]domain.ConfiguredService{
		"db01": {fsVar, fsRoot},
		"db02": {fsVar},
	}

	require.Equal(t, []domain.ConfiguredService{fsVar}, c.ClusterServices("dbc", nodeServices))
	require.Equal(t, []domain.ConfiguredService{fsRoot}, c.NodeServices("db01", nodeServices["db01"]))
	require.Empty(t, c.NodeServices("db02", nodeServices["db02"]))
}

func TestOnlyFromAndServiceLevel(t *testing.T) {
	t.Parallel()

	c, err := New(testConfig())
	require.NoError(t, err)

	require.Equal(t, params.List{params.String("10.0.0.1")}, c.OnlyFrom("db01"))
	require.True(t, params.IsNull(c.OnlyFrom("db02")))
	require.Equal(t, 10, c.ServiceLevel("db01"))
}

func TestNewRejectsBadMode(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Cluster[0].Service[0].Mode = "random"
	_, err := New(cfg)
	require.Error(t, err)
}
