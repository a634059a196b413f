package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/agentic-research/taxa/api"
)

// ReadRenamePairs reads "old,new" lines. Blank lines and lines starting
// with # are skipped.
func ReadRenamePairs(fs billy.Filesystem, path string) ([]api.RenamePair, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	cr := csv.NewReader(f)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var pairs []api.RenamePair
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return pairs, nil
		}
		if err != nil {
			return nil, err
		}
		if len(rec) != 2 {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("%s line %d: expected old,new but got %d fields", path, line, len(rec))
		}
		pairs = append(pairs, api.RenamePair{Old: strings.TrimSpace(rec[0]), New: strings.TrimSpace(rec[1])})
	}
}
