package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type loadedPack struct {
	path string
	data []byte
	pack *Pack
}

// loadPacks reads every .yaml file in packsDir in name order. Files whose
// base name starts with "_" are listed but disabled. A missing directory
// yields no packs; an unreadable or malformed pack is an error, so a broken
// overlay can never silently drop rules.
func loadPacks(packsDir string) ([]loadedPack, []PackInfo, error) {
	entries, err := os.ReadDir(packsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var packs []loadedPack
	var infos []PackInfo
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		path := filepath.Join(packsDir, entry.Name())
		baseName := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		enabled := !strings.HasPrefix(baseName, "_")

		if !enabled {
			infos = append(infos, PackInfo{Name: strings.TrimPrefix(baseName, "_"), Enabled: false, Path: path})
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}
		var pack Pack
		if err := decodeStrict(data, &pack); err != nil {
			return nil, nil, fmt.Errorf("failed to parse pack %s: %w", path, err)
		}

		info := PackInfo{
			Name:        pack.Name,
			Description: pack.Description,
			Version:     pack.Version,
			Author:      pack.Author,
			Enabled:     true,
			Path:        path,
			RuleCount:   len(pack.Rules),
		}
		if info.Name == "" {
			info.Name = baseName
		}
		infos = append(infos, info)
		packs = append(packs, loadedPack{path: path, data: data, pack: &pack})
	}
	return packs, infos, nil
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
