package config

import (
	"fmt"
	"strings"

	"github.com/go-ini/ini"
)

// legacyKeys maps dwh.cfg section/key pairs to config keys.
var legacyKeys = map[string]map[string]string{
	"CLUSTER": {
		"HOST":                   "target.host",
		"DB_NAME":                "target.database",
		"DB_USER":                "target.user",
		"DB_PASSWORD":            "target.password",
		"DB_PORT":                "target.port",
		"DWH_CLUSTER_IDENTIFIER": "cluster.identifier",
		"DWH_CLUSTER_TYPE":       "cluster.type",
		"DWH_NODE_TYPE":          "cluster.node_type",
		"DWH_NUM_NODES":          "cluster.num_nodes",
		"DWH_IAM_ROLE_NAME":      "cluster.iam_role_name",
	},
	"IAM_ROLE": {
		"ARN": "iam_role.arn",
	},
	"S3": {
		"LOG_DATA":     "sources.log_data",
		"LOG_JSONPATH": "sources.log_jsonpath",
		"SONG_DATA":    "sources.song_data",
		"REGION":       "sources.region",
	},
	"AWS": {
		"KEY":    "aws.key",
		"SECRET": "aws.secret",
		"REGION": "aws.region",
	},
}

// readLegacy reads an INI file in the dwh.cfg layout into flat config keys.
// Unknown sections and keys are ignored and empty values are skipped. go-ini
// strips the quotes dwh.cfg files put around values.
func readLegacy(path string) (map[string]any, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment: true,
	}, path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	out := make(map[string]any)
	for section, keys := range legacyKeys {
		s, err := f.GetSection(section)
		if err != nil {
			continue
		}
		for name, key := range keys {
			if !s.HasKey(name) {
				continue
			}
			if v := strings.TrimSpace(s.Key(name).String()); v != "" {
				out[key] = v
			}
		}
	}
	out["target.type"] = DefaultTargetType
	return out, nil
}
