// Command altpatch applies the alternative instruction sites of an
// AArch64 image file offline.
//
// The image's layout comes from a YAML manifest. Addresses are strings so
// they can carry an 0x prefix:
//
//	base: "0x400000"
//	text:
//	  - { start: "0x400000", end: "0x440000" }
//	data:
//	  - { start: "0x460000", end: "0x468000" }
//	table: { start: "0x450000", end: "0x450018" }
//	features: [atomics, crc32]
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/goccy/go-yaml"

	"github.com/pboyd/altpatch"
	"github.com/pboyd/altpatch/insn"
)

func main() {
	var (
		manifestPath string
		outPath      string
		dryRun       bool
		hostCPU      bool
		verbose      bool
	)
	flag.StringVar(&manifestPath, "manifest", "", "image layout manifest (required)")
	flag.StringVar(&outPath, "o", "", "write the patched image to this file")
	flag.BoolVar(&dryRun, "n", false, "list patch sites without applying anything")
	flag.BoolVar(&hostCPU, "host", false, "patch for this machine's CPU instead of the manifest's feature list")
	flag.BoolVar(&verbose, "v", false, "log every applied site")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -manifest layout.yaml [-o patched.bin] [-n] image.bin\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if manifestPath == "" || flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if !dryRun && outPath == "" {
		log.Fatal("nothing to do: need -o or -n")
	}

	m, err := readManifest(manifestPath)
	if err != nil {
		log.Fatalf("%s: %v", manifestPath, err)
	}

	imagePath := flag.Arg(0)
	data, err := os.ReadFile(imagePath)
	if err != nil {
		log.Fatal(err)
	}

	var features altpatch.FeatureList
	if hostCPU {
		features = altpatch.DetectFeatures()
	} else {
		for _, name := range m.Features {
			f, err := altpatch.ParseFeature(name)
			if err != nil {
				log.Fatalf("%s: %v", manifestPath, err)
			}
			features = append(features, f)
		}
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	cfg, err := m.config(data)
	if err != nil {
		log.Fatalf("%s: %v", manifestPath, err)
	}
	cfg.Features = features
	cfg.Log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	p, err := altpatch.New(cfg)
	if err != nil {
		log.Fatal(err)
	}

	if dryRun {
		if err := list(os.Stdout, cfg, features); err != nil {
			log.Fatal(err)
		}
		return
	}

	apply(p)

	if err := os.WriteFile(outPath, data, 0644); err != nil {
		log.Fatal(err)
	}
}

// apply runs the whole-image pass, turning a patching failure into a
// plain fatal log instead of a panic trace.
func apply(p *altpatch.Patcher) {
	defer func() {
		if e := recover(); e != nil {
			if fe, ok := e.(*altpatch.FatalError); ok {
				log.Fatal(fe)
			}
			panic(e)
		}
	}()
	p.ApplyAll()
}

// list prints every site in the table, whether it would apply, and the
// disassembly of its replacement block.
func list(w io.Writer, cfg altpatch.Config, features altpatch.FeatureSet) error {
	if cfg.Table.Len() == 0 {
		return nil
	}
	sites, err := altpatch.ParseTable(cfg.Image, cfg.Table.Start, cfg.Table.Len())
	if err != nil {
		return err
	}

	for _, site := range sites {
		verdict := "skip"
		if features.Has(site.Feature) {
			verdict = "apply"
		}
		fmt.Fprintf(w, "%s\t%s\torig=%#x\trepl=%#x\tlen=%d\n", verdict, site.Feature, site.Orig, site.Repl, site.OrigLen)

		repl, ok := cfg.Image.Bytes(site.Repl, uint64(site.ReplLen))
		if !ok {
			return fmt.Errorf("site replacement %#x+%d outside image", site.Repl, site.ReplLen)
		}
		fmt.Fprint(w, insn.Disassemble(repl, site.Repl))
	}
	return nil
}

type manifest struct {
	Base     string         `yaml:"base"`
	Text     []manifestSpan `yaml:"text"`
	Data     []manifestSpan `yaml:"data"`
	Table    manifestSpan   `yaml:"table"`
	Features []string       `yaml:"features"`
}

type manifestSpan struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

func readManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// config assembles a Config for patching data as a detached buffer.
func (m *manifest) config(data []byte) (altpatch.Config, error) {
	var cfg altpatch.Config

	base, err := parseAddr(m.Base)
	if err != nil {
		return cfg, fmt.Errorf("base: %w", err)
	}
	cfg.Image = &altpatch.Image{Base: base, Data: data}

	for _, ms := range m.Text {
		s, err := ms.span()
		if err != nil {
			return cfg, fmt.Errorf("text: %w", err)
		}
		cfg.Layout.Text = append(cfg.Layout.Text, s)
	}
	for _, ms := range m.Data {
		s, err := ms.span()
		if err != nil {
			return cfg, fmt.Errorf("data: %w", err)
		}
		cfg.Layout.Data = append(cfg.Layout.Data, s)
	}

	cfg.Table, err = m.Table.span()
	if err != nil {
		return cfg, fmt.Errorf("table: %w", err)
	}
	return cfg, nil
}

func (ms manifestSpan) span() (altpatch.Span, error) {
	start, err := parseAddr(ms.Start)
	if err != nil {
		return altpatch.Span{}, err
	}
	end, err := parseAddr(ms.End)
	if err != nil {
		return altpatch.Span{}, err
	}
	if end < start {
		return altpatch.Span{}, fmt.Errorf("span ends at %#x before it starts at %#x", end, start)
	}
	return altpatch.Span{Start: start, End: end}, nil
}

func parseAddr(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 0, 64)
}
