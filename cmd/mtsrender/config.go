package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/Acontardi-014/mitsuba2/rfilter"
)

// Defaults used when neither the config file nor a flag sets a value.
const (
	Width    = 640
	Height   = 480
	Spp      = 4
	Passes   = 1
	Filter   = "gaussian"
	Pattern  = "zoneplate"
	Output   = "out.tiff"
	Language = "en"
)

// CropCfg is a crop window in film pixels. A zero size renders the whole
// film.
type CropCfg struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Config is the renderer configuration read from JSON and flags.
type Config struct {
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	Crop      CropCfg  `json:"crop,omitempty"`
	Spp       int      `json:"spp"`
	Passes    int      `json:"passes,omitempty"`
	BlockSize int      `json:"blockSize,omitempty"`
	Workers   int      `json:"workers,omitempty"`
	Filter    string   `json:"filter"`
	Pattern   string   `json:"pattern"`
	Vectorize bool     `json:"vectorize,omitempty"`
	Normalize bool     `json:"normalize,omitempty"`
	Seed      uint64   `json:"seed,omitempty"`
	Timeout   Duration `json:"timeout,omitempty"`
	Output    string   `json:"output"`
	Snapshot  string   `json:"snapshot,omitempty"`
	Preview   int      `json:"preview,omitempty"` // downsampling factor, 0 disables
	Language  string   `json:"language,omitempty"`
	Verbose   bool     `json:"verbose,omitempty"`
}

// Duration is a time.Duration read from a JSON string such as "1m30s".
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func defaultConfig() *Config {
	return &Config{
		Width:    Width,
		Height:   Height,
		Spp:      Spp,
		Passes:   Passes,
		Filter:   Filter,
		Pattern:  Pattern,
		Output:   Output,
		Language: Language,
	}
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := defaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// parseConfig builds the configuration from the command line. Values from
// the file named by -config are overridden by explicitly set flags.
func parseConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("mtsrender", flag.ContinueOnError)
	var (
		path      = fs.String("config", "", "JSON configuration file")
		width     = fs.Int("width", Width, "film width")
		height    = fs.Int("height", Height, "film height")
		crop      = fs.String("crop", "", "crop window as x,y,width,height")
		spp       = fs.Int("spp", Spp, "samples per pixel and pass")
		passes    = fs.Int("passes", Passes, "number of passes")
		blockSize = fs.Int("block", 0, "block size (0 selects the default)")
		workers   = fs.Int("workers", 0, "worker goroutines (0 selects GOMAXPROCS)")
		filter    = fs.String("filter", Filter, "reconstruction filter")
		pattern   = fs.String("pattern", Pattern, "test pattern: zoneplate, checker or gradient")
		vectorize = fs.Bool("vectorize", false, "splat samples in packets")
		normalize = fs.Bool("normalize", false, "normalize filter footprints")
		seed      = fs.Uint64("seed", 0, "random seed")
		timeout   = fs.Duration("timeout", 0, "stop rendering after this duration")
		output    = fs.String("o", Output, "output TIFF file")
		snapshot  = fs.String("snapshot", "", "write a compressed float snapshot to this file")
		preview   = fs.Int("preview", 0, "also write a preview downsampled by this factor")
		lang      = fs.String("lang", Language, "language tag for statistics output")
		verbose   = fs.Bool("v", false, "debug logging")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if *path != "" {
		var err error
		if cfg, err = loadConfig(*path); err != nil {
			return nil, err
		}
	}

	var cropErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "width":
			cfg.Width = *width
		case "height":
			cfg.Height = *height
		case "crop":
			cfg.Crop, cropErr = parseCrop(*crop)
		case "spp":
			cfg.Spp = *spp
		case "passes":
			cfg.Passes = *passes
		case "block":
			cfg.BlockSize = *blockSize
		case "workers":
			cfg.Workers = *workers
		case "filter":
			cfg.Filter = *filter
		case "pattern":
			cfg.Pattern = *pattern
		case "vectorize":
			cfg.Vectorize = *vectorize
		case "normalize":
			cfg.Normalize = *normalize
		case "seed":
			cfg.Seed = *seed
		case "timeout":
			cfg.Timeout = Duration(*timeout)
		case "o":
			cfg.Output = *output
		case "snapshot":
			cfg.Snapshot = *snapshot
		case "preview":
			cfg.Preview = *preview
		case "lang":
			cfg.Language = *lang
		case "v":
			cfg.Verbose = *verbose
		}
	})
	if cropErr != nil {
		return nil, cropErr
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseCrop(s string) (CropCfg, error) {
	var c CropCfg
	if _, err := fmt.Sscanf(s, "%d,%d,%d,%d", &c.X, &c.Y, &c.Width, &c.Height); err != nil {
		return CropCfg{}, fmt.Errorf("invalid crop %q: %w", s, err)
	}
	return c, nil
}

var (
	errNoOutput       = errors.New("no output file")
	errUnknownPattern = errors.New("unknown pattern")
)

func (c *Config) validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid film size %dx%d", c.Width, c.Height)
	}
	if c.Spp <= 0 {
		return fmt.Errorf("invalid spp %d", c.Spp)
	}
	if c.Passes <= 0 {
		c.Passes = Passes
	}
	if c.Preview < 0 {
		return fmt.Errorf("invalid preview factor %d", c.Preview)
	}
	if c.Output == "" {
		return errNoOutput
	}
	if _, err := rfilter.ByName(c.Filter); err != nil {
		return err
	}
	if _, ok := patterns[c.Pattern]; !ok {
		return fmt.Errorf("%w: %q", errUnknownPattern, c.Pattern)
	}
	return nil
}

// cropWindow returns the crop size and offset.
func (c *Config) cropWindow() (size, offset image.Point) {
	if c.Crop.Width == 0 && c.Crop.Height == 0 {
		return image.Pt(c.Width, c.Height), image.Point{}
	}
	return image.Pt(c.Crop.Width, c.Crop.Height), image.Pt(c.Crop.X, c.Crop.Y)
}
