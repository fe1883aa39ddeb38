package layers

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// MunicipalityDigits is the KEYCODE prefix naming a municipality.
	MunicipalityDigits = 5
	// ShardIndexFile lists the shard files written to a directory.
	ShardIndexFile = "index.json"
	// ShardPattern names shard files.
	ShardPattern = "layers_{municipality_code}.json"

	unknownMunicipality = "unknown"
	shardConcurrency    = 4
)

// ShardIndex is written next to the shard files.
type ShardIndex struct {
	Municipalities []string `json:"municipalities"`
	FilePattern    string   `json:"file_pattern"`
}

// Municipality returns the municipality code of a normalized KEYCODE.
func Municipality(keycode string) string {
	if len(keycode) < MunicipalityDigits {
		return unknownMunicipality
	}
	return keycode[:MunicipalityDigits]
}

// Shard writes idx to dir as one layers_<municipality>.json per
// municipality, plus index.json listing the municipalities in code order.
func Shard(idx Index, dir string) (*ShardIndex, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "layers: create %s", dir)
	}

	shards := make(map[string]Index)
	for key, layers := range idx {
		m := Municipality(key)
		if shards[m] == nil {
			shards[m] = make(Index)
		}
		shards[m][key] = layers
	}

	out := &ShardIndex{FilePattern: ShardPattern}
	for m := range shards {
		out.Municipalities = append(out.Municipalities, m)
	}
	sort.Strings(out.Municipalities)

	g := new(errgroup.Group)
	g.SetLimit(shardConcurrency)
	for _, m := range out.Municipalities {
		path := filepath.Join(dir, "layers_"+m+".json")
		shard := shards[m]
		g.Go(func() error {
			return writeIndexFile(path, shard)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	f, err := os.Create(filepath.Join(dir, ShardIndexFile))
	if err != nil {
		return nil, eris.Wrap(err, "layers: create shard index")
	}
	defer f.Close() //nolint:errcheck
	if err := writeJSON(f, out); err != nil {
		return nil, err
	}

	zap.L().With(zap.String("component", "layers")).Info("layer index sharded",
		zap.String("dir", dir),
		zap.Int("keycodes", len(idx)),
		zap.Int("municipalities", len(out.Municipalities)),
	)
	return out, nil
}

func writeIndexFile(path string, idx Index) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "layers: create %s", path)
	}
	defer f.Close() //nolint:errcheck
	if err := Write(f, idx); err != nil {
		return eris.Wrapf(err, "layers: write %s", path)
	}
	return nil
}
