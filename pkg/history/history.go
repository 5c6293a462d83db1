// Package history records pipeline reports in a bbolt database.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
	bolt "go.etcd.io/bbolt"

	"github.com/DethRaid/SanityEngine/pkg/pipeline"
	"github.com/DethRaid/SanityEngine/pkg/sblog"
)

var (
	runsBucket   = []byte("runs")
	outputBucket = []byte("output")
)

// ErrNotFound is returned for unknown run IDs
var ErrNotFound = eris.New("run not found")

// Store keeps the most recent reports and the output captured during each stage
type Store struct {
	db   *bolt.DB
	keep int
}

// Open opens (or creates) the database at path. Only the newest keep runs are retained, 0 keeps
// all of them.
func Open(path string, keep int) (*Store, error) {
	err := os.MkdirAll(filepath.Dir(path), 0770)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to create the directory for %s", path)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{runsBucket, outputBucket} {
			_, err := tx.CreateBucketIfNotExists(bucket)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, eris.Wrap(err, "failed to initialize the history")
	}

	return &Store{db: db, keep: keep}, nil
}

// Close releases the database lock
func (s *Store) Close() error {
	return s.db.Close()
}

func outputKey(id string, stage pipeline.StageName) []byte {
	return []byte(id + "/" + string(stage))
}

func compress(data string) ([]byte, error) {
	var buf bytes.Buffer
	writer := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)

	_, err := writer.Write([]byte(data))
	if err != nil {
		return nil, err
	}

	err = writer.Close()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Record stores report and the output of its stages, then drops the oldest runs beyond the limit.
func (s *Store) Record(ctx context.Context, report *pipeline.Report) error {
	encoded, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "failed to encode report")
	}

	outputs := map[pipeline.StageName][]byte{}
	for _, stage := range report.Stages {
		if stage.Output == "" {
			continue
		}

		outputs[stage.Stage], err = compress(stage.Output)
		if err != nil {
			return eris.Wrapf(err, "failed to compress the output of %s", stage.Stage)
		}
	}

	var pruned []string
	err = s.db.Update(func(tx *bolt.Tx) error {
		err := tx.Bucket(runsBucket).Put([]byte(report.ID), encoded)
		if err != nil {
			return err
		}

		for stage, data := range outputs {
			err = tx.Bucket(outputBucket).Put(outputKey(report.ID, stage), data)
			if err != nil {
				return err
			}
		}

		pruned, err = s.prune(tx)
		return err
	})
	if err != nil {
		return eris.Wrapf(err, "failed to save run %s", report.ID)
	}

	if len(pruned) > 0 {
		sblog.Log(ctx).Debug().Strs("runs", pruned).Msg("Removed old runs from the history")
	}
	return nil
}

func (s *Store) prune(tx *bolt.Tx) ([]string, error) {
	if s.keep < 1 {
		return nil, nil
	}

	reports, err := listReports(tx)
	if err != nil {
		return nil, err
	}

	if len(reports) <= s.keep {
		return nil, nil
	}

	var pruned []string
	runs := tx.Bucket(runsBucket)
	output := tx.Bucket(outputBucket)
	for _, report := range reports[s.keep:] {
		err = runs.Delete([]byte(report.ID))
		if err != nil {
			return nil, err
		}

		for _, stage := range pipeline.Stages {
			err = output.Delete(outputKey(report.ID, stage))
			if err != nil {
				return nil, err
			}
		}
		pruned = append(pruned, report.ID)
	}
	return pruned, nil
}

// listReports returns all reports, newest first
func listReports(tx *bolt.Tx) ([]*pipeline.Report, error) {
	reports := []*pipeline.Report{}
	err := tx.Bucket(runsBucket).ForEach(func(k, v []byte) error {
		report := new(pipeline.Report)
		err := json.Unmarshal(v, report)
		if err != nil {
			return eris.Wrapf(err, "failed to decode run %s", k)
		}

		reports = append(reports, report)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].Started.After(reports[j].Started)
	})
	return reports, nil
}

// List returns all recorded runs, newest first
func (s *Store) List() ([]*pipeline.Report, error) {
	var reports []*pipeline.Report
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		reports, err = listReports(tx)
		return err
	})
	return reports, err
}

// Get returns the report for the given run
func (s *Store) Get(id string) (*pipeline.Report, error) {
	report := new(pipeline.Report)
	err := s.db.View(func(tx *bolt.Tx) error {
		item := tx.Bucket(runsBucket).Get([]byte(id))
		if item == nil {
			return eris.Wrapf(ErrNotFound, "unknown run %s", id)
		}

		return json.Unmarshal(item, report)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Output returns the captured output of a stage. Stages without output return an empty string.
func (s *Store) Output(id string, stage pipeline.StageName) (string, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(runsBucket).Get([]byte(id)) == nil {
			return eris.Wrapf(ErrNotFound, "unknown run %s", id)
		}

		item := tx.Bucket(outputBucket).Get(outputKey(id, stage))
		// bbolt's slices are only valid during the transaction
		data = append(data, item...)
		return nil
	})
	if err != nil {
		return "", err
	}

	if len(data) == 0 {
		return "", nil
	}

	decoded, err := ioutil.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	if err != nil {
		return "", eris.Wrapf(err, "failed to decompress the output of %s", stage)
	}
	return string(decoded), nil
}
