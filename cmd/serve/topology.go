package serve

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chainkv/chainkv/chain"
	"github.com/chainkv/chainkv/chain/config"
	"github.com/spf13/viper"
)

// topologyFile is the on-disk shape of the --topology file: the cluster
// layout a chainkv process needs to build its own chain/config.Static
// plus an address book for chain/messenger. It is deliberately a
// separate file from the serve command's flags/env, the same way the
// teacher keeps ServerConfig's shard list as its own comma-separated
// flag value rather than a file - here the layout is large and static
// enough (one or more spaces, each with its own subspaces and regions)
// that a file reads better than a flag.
type topologyFile struct {
	Instances []instanceFile `mapstructure:"instances"`
	Spaces    []spaceFile    `mapstructure:"spaces"`
}

type instanceFile struct {
	ID      uint64 `mapstructure:"id"`
	Address string `mapstructure:"address"`
}

type spaceFile struct {
	ID         uint32          `mapstructure:"id"`
	KeyType    string          `mapstructure:"key_type"`
	Attributes []attributeFile `mapstructure:"attributes"`
	Subspaces  []subspaceFile  `mapstructure:"subspaces"`
}

type attributeFile struct {
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"`
}

type subspaceFile struct {
	HashAttr int          `mapstructure:"hash_attr"`
	Regions  []regionFile `mapstructure:"regions"`
}

type regionFile struct {
	Prefix string   `mapstructure:"prefix"`
	Mask   uint8    `mapstructure:"mask"`
	Chain  []uint64 `mapstructure:"chain"`
}

var attrTypesByName = map[string]chain.AttrType{
	"string":               chain.TypeString,
	"int64":                 chain.TypeInt64,
	"float64":               chain.TypeFloat64,
	"map_generic":           chain.TypeMapGeneric,
	"map_string_string":     chain.TypeMapStringString,
	"map_string_int64":      chain.TypeMapStringInt64,
	"map_string_float64":    chain.TypeMapStringFloat64,
	"map_int64_string":      chain.TypeMapInt64String,
	"map_int64_int64":       chain.TypeMapInt64Int64,
	"map_int64_float64":     chain.TypeMapInt64Float64,
	"map_float64_string":    chain.TypeMapFloat64String,
	"map_float64_int64":     chain.TypeMapFloat64Int64,
	"map_float64_float64":   chain.TypeMapFloat64Float64,
}

func attrType(name string) (chain.AttrType, error) {
	t, ok := attrTypesByName[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("topology: unknown attribute type %q", name)
	}
	return t, nil
}

// topology is a loaded topologyFile resolved into the shapes the rest of
// cmd/serve's wiring needs.
type topology struct {
	Self      chain.InstanceId
	Addresses map[chain.InstanceId]string
	Spaces    map[chain.SpaceId]*config.SpaceSpec
}

// loadTopology reads path (YAML, JSON or TOML - whatever viper's own
// format auto-detection picks from the extension) into a topology, and
// self names which instance this process is.
func loadTopology(path string, self chain.InstanceId) (*topology, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("topology: reading %s: %w", path, err)
	}

	var file topologyFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("topology: parsing %s: %w", path, err)
	}

	addresses := make(map[chain.InstanceId]string, len(file.Instances))
	for _, inst := range file.Instances {
		addresses[chain.InstanceId(inst.ID)] = inst.Address
	}

	spaces := make(map[chain.SpaceId]*config.SpaceSpec, len(file.Spaces))
	for _, sf := range file.Spaces {
		keyType, err := attrType(sf.KeyType)
		if err != nil {
			return nil, fmt.Errorf("topology: space %d: %w", sf.ID, err)
		}
		schema := chain.Schema{Space: chain.SpaceId(sf.ID), KeyType: keyType}
		for _, af := range sf.Attributes {
			t, err := attrType(af.Type)
			if err != nil {
				return nil, fmt.Errorf("topology: space %d attribute %q: %w", sf.ID, af.Name, err)
			}
			schema.Attributes = append(schema.Attributes, chain.Attribute{Name: af.Name, Type: t})
		}

		spec := &config.SpaceSpec{Schema: schema}
		for _, subf := range sf.Subspaces {
			sub := config.SubspaceSpec{HashAttr: subf.HashAttr}
			for _, rf := range subf.Regions {
				prefix, err := strconv.ParseUint(rf.Prefix, 0, 64)
				if err != nil {
					return nil, fmt.Errorf("topology: space %d region prefix %q: %w", sf.ID, rf.Prefix, err)
				}
				chainIDs := make([]chain.InstanceId, 0, len(rf.Chain))
				for _, id := range rf.Chain {
					chainIDs = append(chainIDs, chain.InstanceId(id))
				}
				sub.Regions = append(sub.Regions, config.RegionSpec{
					Prefix: prefix,
					Mask:   rf.Mask,
					Chain:  chainIDs,
				})
			}
			spec.Subspaces = append(spec.Subspaces, sub)
		}
		spaces[chain.SpaceId(sf.ID)] = spec
	}

	return &topology{Self: self, Addresses: addresses, Spaces: spaces}, nil
}
