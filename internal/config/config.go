package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"thingcraft.ai/internal/render"
	"thingcraft.ai/internal/voxel"
)

type Config struct {
	DataDir  string   `yaml:"data_dir"`
	Renderer Renderer `yaml:"renderer"`
	Server   Server   `yaml:"server"`

	// Journal enables the JSONL render journal and audit log under DataDir.
	Journal bool `yaml:"journal"`
	// IndexDB is the SQLite index path. Empty disables the index.
	IndexDB string `yaml:"index_db"`
}

type Renderer struct {
	Backend         string            `yaml:"backend"`
	URL             string            `yaml:"url"`
	Out             string            `yaml:"out"`
	Timeout         time.Duration     `yaml:"timeout"`
	RotationDegrees int               `yaml:"rotation_degrees"`
	Clearing        bool              `yaml:"clearing"`
	EmptyID         uint16            `yaml:"empty_id"`
	Substitutions   map[uint16]uint16 `yaml:"substitutions"`
	BlockNames      map[uint16]string `yaml:"block_names"`
	PlanWorkers     int               `yaml:"plan_workers"`
}

// Server configures cmd/worldd.
type Server struct {
	Addr          string `yaml:"addr"`
	MaxFillVolume int    `yaml:"max_fill_volume"`
	Bounded       bool   `yaml:"bounded"`
	Min           [3]int `yaml:"min"`
	Max           [3]int `yaml:"max"`
	// Snapshot is loaded on start when present and written on shutdown.
	Snapshot string `yaml:"snapshot"`
}

func Defaults() Config {
	return Config{
		DataDir: "./data",
		Renderer: Renderer{
			Backend: string(render.KindMemory),
			Timeout: 10 * time.Second,
		},
		Server: Server{
			Addr:          ":8080",
			MaxFillVolume: 32 * 32 * 32,
		},
		Journal: true,
	}
}

// Load reads a YAML file over Defaults.
func Load(path string) (Config, error) {
	c := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c Config) Validate() error {
	if !render.Kind(c.Renderer.Backend).Valid() {
		return fmt.Errorf("renderer.backend: unknown backend %q (want one of %v)", c.Renderer.Backend, render.Kinds)
	}
	if _, err := voxel.ParseOptionalDegrees(c.Renderer.RotationDegrees); err != nil {
		return fmt.Errorf("renderer.rotation_degrees: %w", err)
	}
	switch render.Kind(c.Renderer.Backend) {
	case render.KindWebSocket:
		if c.Renderer.URL == "" {
			return fmt.Errorf("renderer.url: required for websocket backend")
		}
	case render.KindGLTF:
		if c.Renderer.Out == "" {
			return fmt.Errorf("renderer.out: required for gltf backend")
		}
	}
	if c.Renderer.PlanWorkers < 0 {
		return fmt.Errorf("renderer.plan_workers: must be >= 0")
	}
	if c.Server.Bounded {
		for i := 0; i < 3; i++ {
			if c.Server.Min[i] > c.Server.Max[i] {
				return fmt.Errorf("server.min/max: %w", voxel.ErrInvalidCuboid)
			}
		}
	}
	return nil
}

// RenderConfig maps the renderer section onto render.Config.
func (c Config) RenderConfig() render.Config {
	return render.Config{
		RotationDegrees: c.Renderer.RotationDegrees,
		Substitutions:   c.Renderer.Substitutions,
		Clearing:        c.Renderer.Clearing,
		Empty:           c.Renderer.EmptyID,
		PlanWorkers:     c.Renderer.PlanWorkers,
	}
}

// BackendConfig maps the renderer section onto render.BackendConfig. An
// out path of "-" means stdout for the command backend.
func (c Config) BackendConfig() render.BackendConfig {
	bc := render.BackendConfig{
		Kind:       render.Kind(c.Renderer.Backend),
		Empty:      c.Renderer.EmptyID,
		Names:      c.Renderer.BlockNames,
		URL:        c.Renderer.URL,
		ClientName: "mcthings",
		Timeout:    c.Renderer.Timeout,
	}
	if c.Renderer.Out != "-" {
		bc.Path = c.Renderer.Out
	}
	return bc
}
