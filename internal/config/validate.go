package config

import (
	"fmt"
	"strings"
)

// MissingKeysError lists required configuration keys that are unset.
type MissingKeysError struct {
	Keys []string
}

func (e *MissingKeysError) Error() string {
	return fmt.Sprintf("missing required configuration: %s\nHint: set them in dwhetl.yaml or dwh.cfg, or as %s* environment variables",
		strings.Join(e.Keys, ", "), EnvPrefix)
}

type requirements []string

func (r *requirements) need(key, value string) {
	if strings.TrimSpace(value) == "" {
		*r = append(*r, key)
	}
}

func (r requirements) err() error {
	if len(r) == 0 {
		return nil
	}
	return &MissingKeysError{Keys: r}
}

// RequireTarget checks the keys needed to open a warehouse connection.
func (c *Config) RequireTarget() error {
	var r requirements
	t := c.Target
	if t == nil {
		return &MissingKeysError{Keys: []string{"target.type"}}
	}
	r.need("target.type", t.Type)
	if t.Type == "redshift" {
		r.need("target.host", t.Host)
		r.need("target.database", t.Database)
		r.need("target.user", t.User)
	}
	return r.err()
}

// RequireSources checks the keys the copy statements render from.
func (c *Config) RequireSources() error {
	var r requirements
	r.need("sources.log_data", c.Sources.LogData)
	r.need("sources.song_data", c.Sources.SongData)
	if c.Target != nil && c.Target.Type == "redshift" {
		r.need("iam_role.arn", c.IAMRole.ARN)
	}
	return r.err()
}

// RequireCluster checks the keys provision and teardown use.
func (c *Config) RequireCluster() error {
	var r requirements
	r.need("cluster.identifier", c.Cluster.Identifier)
	r.need("cluster.type", c.Cluster.Type)
	r.need("cluster.node_type", c.Cluster.NodeType)
	r.need("cluster.iam_role_name", c.Cluster.IAMRoleName)
	r.need("aws.region", c.AWS.Region)
	if c.Target != nil {
		r.need("target.database", c.Target.Database)
		r.need("target.user", c.Target.User)
		r.need("target.password", c.Target.Password)
	}
	if err := r.err(); err != nil {
		return err
	}

	switch c.Cluster.Type {
	case "single-node":
	case "multi-node":
		if c.Cluster.NumNodes < 2 {
			return fmt.Errorf("cluster.num_nodes must be at least 2 for a multi-node cluster, got %d", c.Cluster.NumNodes)
		}
	default:
		return fmt.Errorf("invalid cluster.type %q (expected single-node or multi-node)", c.Cluster.Type)
	}
	return nil
}
