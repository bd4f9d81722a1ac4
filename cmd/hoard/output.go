package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"hoard-go/internal/hoard"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

type detailView struct {
	Path       string          `yaml:"path"`
	Collection string          `yaml:"collection"`
	Size       int64           `yaml:"size"`
	Added      time.Time       `yaml:"added"`
	Hashes     []hashView      `yaml:"hashes"`
	Entries    []entryView     `yaml:"entries,omitempty"`
	Placements []placementView `yaml:"placements"`
}

type hashView struct {
	Algorithm string `yaml:"algorithm"`
	Value     string `yaml:"value"`
}

type entryView struct {
	Path string `yaml:"path"`
	Size int64  `yaml:"size"`
}

type placementView struct {
	Disk      string    `yaml:"disk"`
	Serial    string    `yaml:"serial"`
	Partition string    `yaml:"partition"`
	Placed    time.Time `yaml:"placed"`
}

func newDetailView(d *hoard.FileDetail) *detailView {
	v := &detailView{
		Path:       d.File.Path,
		Collection: d.Collection.Name,
		Size:       d.File.Size,
		Added:      d.File.CreatedAt,
	}
	for _, h := range d.Hashes {
		v.Hashes = append(v.Hashes, hashView{Algorithm: h.Algorithm, Value: hex.EncodeToString(h.Value)})
	}
	for _, e := range d.Entries {
		v.Entries = append(v.Entries, entryView{Path: e.Path, Size: e.Size})
	}
	for _, p := range d.Placements {
		v.Placements = append(v.Placements, placementView{
			Disk:      p.Disk.Label,
			Serial:    p.Disk.SerialNumber,
			Partition: p.Partition.UUID,
			Placed:    p.PlacedAt,
		})
	}
	return v
}

// renderDetail writes d to w as "text" or "yaml".
func renderDetail(w io.Writer, d *hoard.FileDetail, format string) error {
	v := newDetailView(d)
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	case "text":
		fmt.Fprintf(w, "%s  (%s)\n", v.Path, v.Collection)
		fmt.Fprintf(w, "  size   %s (%d bytes)\n", humanize.IBytes(uint64(v.Size)), v.Size)
		fmt.Fprintf(w, "  added  %s\n", v.Added.Format("2006-01-02 15:04:05"))
		for _, h := range v.Hashes {
			fmt.Fprintf(w, "  %-9s %s\n", h.Algorithm, h.Value)
		}
		if len(v.Entries) > 0 {
			fmt.Fprintf(w, "  entries (%d):\n", len(v.Entries))
			for _, e := range v.Entries {
				fmt.Fprintf(w, "    %10s  %s\n", humanize.IBytes(uint64(e.Size)), e.Path)
			}
		}
		for _, p := range v.Placements {
			fmt.Fprintf(w, "  on %s (%s) partition %s since %s\n", p.Disk, p.Serial, p.Partition, p.Placed.Format("2006-01-02"))
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text or yaml)", format)
	}
}

func readPassphrase() (string, error) {
	fmt.Fprint(os.Stderr, "Passphrase: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

// readNewPassphrase prompts twice and requires both entries to match.
func readNewPassphrase() (string, error) {
	first, err := readPassphrase()
	if err != nil {
		return "", err
	}
	fmt.Fprint(os.Stderr, "Again: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if string(b) != first {
		return "", fmt.Errorf("passphrases do not match")
	}
	return first, nil
}
