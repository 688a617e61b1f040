// Package migrations embeds the run ledger schema and validates the migration set.
//
// Files follow golang-migrate naming: 001_name.up.sql / 001_name.down.sql.
package migrations

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
)

//go:embed *.sql
var embedded embed.FS

var filenamePattern = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

var (
	// ErrNoMigrations is returned when the source holds no migration files.
	ErrNoMigrations = errors.New("no migration files found")
	// ErrUnpaired is returned when an up migration has no down migration or vice versa.
	ErrUnpaired = errors.New("unpaired migration")
	// ErrSequenceGap is returned when sequence numbers do not run 001, 002, ... without gaps.
	ErrSequenceGap = errors.New("gap in migration sequence")
)

type (
	// Source is a set of migration files.
	Source struct {
		fsys fs.FS
	}

	// Info describes one migration file.
	Info struct {
		Sequence  int
		Name      string
		Direction string // "up" or "down"
		Filename  string
	}
)

// New returns a Source over fsys. Pass nil for the embedded migrations.
func New(fsys fs.FS) *Source {
	if fsys == nil {
		fsys = embedded
	}

	return &Source{fsys: fsys}
}

// FS returns the underlying file system for golang-migrate's iofs driver.
func (s *Source) FS() fs.FS {
	return s.fsys
}

// List returns the migration files in apply order. Files that do not follow
// the naming scheme are ignored.
func (s *Source) List() ([]Info, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var infos []Info

	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}

		info, ok := parseFilename(entry.Name())
		if !ok {
			continue
		}

		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Sequence != infos[j].Sequence {
			return infos[i].Sequence < infos[j].Sequence
		}

		return infos[i].Direction > infos[j].Direction // up before down
	})

	return infos, nil
}

// Validate checks that every migration is paired and that sequences start at 001 with no gaps.
func (s *Source) Validate() error {
	infos, err := s.List()
	if err != nil {
		return err
	}

	if len(infos) == 0 {
		return ErrNoMigrations
	}

	pairs := make(map[string]map[string]bool)

	var sequences []int

	for _, info := range infos {
		key := fmt.Sprintf("%03d_%s", info.Sequence, info.Name)
		if pairs[key] == nil {
			pairs[key] = make(map[string]bool, 2)

			sequences = append(sequences, info.Sequence)
		}

		pairs[key][info.Direction] = true
	}

	for key, directions := range pairs {
		if !directions["up"] {
			return fmt.Errorf("%w: missing up migration for %s", ErrUnpaired, key)
		}

		if !directions["down"] {
			return fmt.Errorf("%w: missing down migration for %s", ErrUnpaired, key)
		}
	}

	sort.Ints(sequences)

	for i, seq := range sequences {
		if seq != i+1 {
			return fmt.Errorf("%w: expected %03d, found %03d", ErrSequenceGap, i+1, seq)
		}
	}

	return nil
}

// MaxVersion is the highest sequence number in the source, 0 when empty.
func (s *Source) MaxVersion() int {
	infos, err := s.List()
	if err != nil || len(infos) == 0 {
		return 0
	}

	return infos[len(infos)-1].Sequence
}

func parseFilename(filename string) (Info, bool) {
	matches := filenamePattern.FindStringSubmatch(filename)
	if len(matches) != 4 {
		return Info{}, false
	}

	seq, err := strconv.Atoi(matches[1])
	if err != nil {
		return Info{}, false
	}

	return Info{Sequence: seq, Name: matches[2], Direction: matches[3], Filename: filename}, true
}
