package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hurttlocker/leasebot/internal/lead"
)

// seedFile is the YAML layout accepted by "leasebot seed".
type seedFile struct {
	Properties []seedProperty `yaml:"properties"`
}

type seedProperty struct {
	ID          string   `yaml:"id"`
	Address     string   `yaml:"address"`
	Bedrooms    int      `yaml:"bedrooms"`
	Bathrooms   float64  `yaml:"bathrooms"`
	Rent        int      `yaml:"rent"`
	Available   *bool    `yaml:"available"` // default true
	PetFriendly bool     `yaml:"pet_friendly"`
	Amenities   []string `yaml:"amenities"`
}

// parseSeed decodes and validates a seed document.
func parseSeed(data []byte) ([]lead.Candidate, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	if len(f.Properties) == 0 {
		return nil, fmt.Errorf("seed file has no properties")
	}

	out := make([]lead.Candidate, 0, len(f.Properties))
	for i, p := range f.Properties {
		if strings.TrimSpace(p.Address) == "" {
			return nil, fmt.Errorf("property %d: address is required", i+1)
		}
		if p.Rent <= 0 {
			return nil, fmt.Errorf("property %d (%s): rent must be positive", i+1, p.Address)
		}
		if p.Bedrooms < 0 {
			return nil, fmt.Errorf("property %d (%s): bedrooms must not be negative", i+1, p.Address)
		}
		if p.Bathrooms == 0 {
			p.Bathrooms = 1
		}
		available := true
		if p.Available != nil {
			available = *p.Available
		}
		out = append(out, lead.Candidate{
			ID:          strings.TrimSpace(p.ID),
			Address:     strings.TrimSpace(p.Address),
			Bedrooms:    p.Bedrooms,
			Bathrooms:   p.Bathrooms,
			Rent:        p.Rent,
			Available:   available,
			PetFriendly: p.PetFriendly,
			Amenities:   p.Amenities,
		})
	}
	return out, nil
}

func runSeed(args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "Validate the file without writing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 1 {
		return fmt.Errorf("usage: leasebot seed <file.yaml> [--dry-run]")
	}

	path := fs.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	props, err := parseSeed(data)
	if err != nil {
		return err
	}
	if *dryRun {
		fmt.Printf("%s: %d properties OK\n", path, len(props))
		return nil
	}

	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	for _, p := range props {
		id, err := s.PutProperty(ctx, p)
		if err != nil {
			return err
		}
		fmt.Printf("  %s  %s\n", id, p.Address)
	}
	fmt.Printf("Seeded %d properties into %s\n", len(props), cfg.DBPath.Value)
	return nil
}
