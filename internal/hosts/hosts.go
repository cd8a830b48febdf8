package hosts

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"checkengine/internal/cluster"
	"checkengine/internal/config"
	"checkengine/internal/domain"
	"checkengine/internal/params"
)

// Host is one monitored host or cluster.
type Host struct {
	Name         domain.HostName
	Address      string
	Management   string
	OnlyFrom     []string
	ServiceLevel int
	Labels       map[string]string
	IsCluster    bool
	Nodes        []domain.HostName
	Static       []domain.ConfiguredService
}

type clusterRule struct {
	pattern *regexp.Regexp
	config  cluster.Config
}

// Cache answers host-model questions for one configuration snapshot.
type Cache struct {
	hosts    map[domain.HostName]Host
	rules    map[domain.HostName][]clusterRule
	clusters map[domain.HostName][]domain.HostName
}

// New builds cache from validated configuration.
// Params: configuration snapshot.
// Returns: cache or error for invalid cluster rules.
func New(cfg config.Config) (*Cache, error) {
	c := &Cache{
		hosts:    make(map[domain.HostName]Host, len(cfg.Host)+len(cfg.Cluster)),
		rules:    make(map[domain.HostName][]clusterRule, len(cfg.Cluster)),
		clusters: make(map[domain.HostName][]domain.HostName),
	}

	for _, h := range cfg.Host {
		name := domain.HostName(h.Name)
		c.hosts[name] = Host{
			Name:         name,
			Address:      h.Address,
			Management:   h.Management,
			OnlyFrom:     h.OnlyFrom,
			ServiceLevel: h.ServiceLevel,
			Labels:       h.Labels,
			Static:       staticServices(h.Service),
		}
	}

	for _, cl := range cfg.Cluster {
		name := domain.HostName(cl.Name)
		nodes := make([]domain.HostName, 0, len(cl.Nodes))
		for _, node := range cl.Nodes {
			nodes = append(nodes, domain.HostName(node))
			c.clusters[domain.HostName(node)] = append(c.clusters[domain.HostName(node)], name)
		}
		sortNames(nodes)
		c.hosts[name] = Host{
			Name:         name,
			ServiceLevel: cl.ServiceLevel,
			Labels:       cl.Labels,
			IsCluster:    true,
			Nodes:        nodes,
			Static:       staticServices(cl.Static),
		}

		for i, rule := range cl.Service {
			compiled, err := config.CompileWildcardPattern(rule.Pattern)
			if err != nil {
				return nil, fmt.Errorf("cluster %s rule %d: %w", cl.Name, i, err)
			}
			mode, err := cluster.ParseMode(rule.Mode)
			if err != nil {
				return nil, fmt.Errorf("cluster %s rule %d: %w", cl.Name, i, err)
			}
			cc := cluster.Config{
				Mode:          mode,
				PrimaryNode:   domain.HostName(rule.PrimaryNode),
				PreferredNode: domain.HostName(rule.PreferredNode),
				MetricsNode:   domain.HostName(rule.MetricsNode),
			}
			if len(rule.LevelsAdditionalNodesCount) == 2 {
				cc.LevelsAdditionalNodes = &[2]float64{rule.LevelsAdditionalNodesCount[0], rule.LevelsAdditionalNodesCount[1]}
			}
			c.rules[name] = append(c.rules[name], clusterRule{pattern: compiled, config: cc})
		}
	}
	for node := range c.clusters {
		sortNames(c.clusters[node])
	}
	return c, nil
}

func staticServices(in []config.StaticServiceConfig) []domain.ConfiguredService {
	out := make([]domain.ConfiguredService, 0, len(in))
	for _, svc := range in {
		out = append(out, domain.ConfiguredService{
			CheckPluginName: domain.CheckPluginName(svc.Plugin),
			Item:            svc.Item,
			Description:     domain.ServiceName(svc.Description),
			Labels:          svc.Labels,
			IsEnforced:      true,
			Origin:          domain.OriginStatic,
			Parameters:      svc.Parameters,
		})
	}
	return out
}

// Host returns one host or cluster.
func (c *Cache) Host(name domain.HostName) (Host, bool) {
	h, ok := c.hosts[name]
	return h, ok
}

// Names returns all hosts and clusters sorted by name.
func (c *Cache) Names() []domain.HostName {
	out := make([]domain.HostName, 0, len(c.hosts))
	for name := range c.hosts {
		out = append(out, name)
	}
	sortNames(out)
	return out
}

// IsCluster reports whether name is a cluster.
func (c *Cache) IsCluster(name domain.HostName) bool {
	return c.hosts[name].IsCluster
}

// Nodes returns sorted nodes of a cluster.
func (c *Cache) Nodes(name domain.HostName) []domain.HostName {
	return c.hosts[name].Nodes
}

// ClustersOf returns clusters containing node.
func (c *Cache) ClustersOf(node domain.HostName) []domain.HostName {
	return c.clusters[node]
}

// EffectiveHost returns the host a node service is checked on.
// Params: node name and service description.
// Returns: first cluster whose rules claim the service, else the node itself.
func (c *Cache) EffectiveHost(node domain.HostName, description domain.ServiceName) domain.HostName {
	for _, clusterName := range c.clusters[node] {
		if _, ok := c.matchRule(clusterName, description); ok {
			return clusterName
		}
	}
	return node
}

// ClusteredServiceConfiguration returns aggregation settings of a clustered service.
// Params: cluster name and service description.
// Returns: matching rule settings; native mode when no rule matches.
func (c *Cache) ClusteredServiceConfiguration(clusterName domain.HostName, description domain.ServiceName) cluster.Config {
	if rule, ok := c.matchRule(clusterName, description); ok {
		return rule.config
	}
	return cluster.Config{Mode: cluster.ModeNative}
}

func (c *Cache) matchRule(clusterName domain.HostName, description domain.ServiceName) (clusterRule, bool) {
	lowered := strings.ToLower(string(description))
	for _, rule := range c.rules[clusterName] {
		if rule.pattern.MatchString(lowered) {
			return rule, true
		}
	}
	return clusterRule{}, false
}

// OnlyFrom returns allowed agent sources as parameter value.
// Params: host name.
// Returns: list of addresses or null when unrestricted.
func (c *Cache) OnlyFrom(name domain.HostName) params.Value {
	h := c.hosts[name]
	if len(h.OnlyFrom) == 0 {
		return params.Null
	}
	out := make(params.List, 0, len(h.OnlyFrom))
	for _, addr := range h.OnlyFrom {
		out = append(out, params.String(addr))
	}
	return out
}

// ServiceLevel returns effective service level of host.
func (c *Cache) ServiceLevel(name domain.HostName) int {
	return c.hosts[name].ServiceLevel
}

// StaticServices returns statically configured services of host.
func (c *Cache) StaticServices(name domain.HostName) []domain.ConfiguredService {
	return c.hosts[name].Static
}

// ClusterServices selects node services that belong to a cluster.
// Params: cluster name and services of each node.
// Returns: services claimed by the cluster (deduplicated by id) plus cluster static services.
func (c *Cache) ClusterServices(clusterName domain.HostName, nodeServices map[domain.HostName][]domain.ConfiguredService) []domain.ConfiguredService {
	seen := make(map[domain.ServiceID]struct{})
	var out []domain.ConfiguredService
	for _, node := range c.Nodes(clusterName) {
		for _, svc := range nodeServices[node] {
			if c.EffectiveHost(node, svc.Description) != clusterName {
				continue
			}
			if _, dup := seen[svc.ID()]; dup {
				continue
			}
			seen[svc.ID()] = struct{}{}
			out = append(out, svc)
		}
	}
	for _, svc := range c.StaticServices(clusterName) {
		if _, dup := seen[svc.ID()]; dup {
			continue
		}
		seen[svc.ID()] = struct{}{}
		out = append(out, svc)
	}
	sortServices(out)
	return out
}

// NodeServices drops services that a cluster claims from a node.
// Params: node name and its services.
// Returns: services checked on the node itself.
func (c *Cache) NodeServices(node domain.HostName, services []domain.ConfiguredService) []domain.ConfiguredService {
	out := make([]domain.ConfiguredService, 0, len(services))
	for _, svc := range services {
		if c.EffectiveHost(node, svc.Description) == node {
			out = append(out, svc)
		}
	}
	sortServices(out)
	return out
}

func sortNames(names []domain.HostName) {
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
}

func sortServices(services []domain.ConfiguredService) {
	sort.SliceStable(services, func(i, j int) bool {
		return services[i].Description < services[j].Description
	})
}

