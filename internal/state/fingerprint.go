package state

import (
	"crypto/sha256"
	"encoding/hex"
	"foldersync/internal/model"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Determine reduces a complete scan to its fingerprint. The result does not
// depend on the order of entries.
func Determine(entries []model.Entry) model.Fingerprint {
	var (
		maxTime time.Time
		count   int
		tuples  = make([]string, 0, len(entries))
	)

	for _, e := range entries {
		switch {
		case e.ModTime.After(maxTime):
			maxTime = e.ModTime
			count = 1
		case e.ModTime.Equal(maxTime):
			count++
		}

		if e.IsFile() {
			tuples = append(tuples, strings.Join([]string{
				e.Key(),
				strconv.FormatInt(e.Size, 10),
				strconv.FormatInt(e.ModTime.UnixNano(), 10),
				e.Hash,
			}, "|"))
		}
	}

	sort.Strings(tuples)

	h := sha256.New()
	for _, tuple := range tuples {
		h.Write([]byte(tuple))
		h.Write([]byte{'\n'})
	}

	return model.Fingerprint{
		MaxModifiedTime:        maxTime.UTC(),
		CountAtMaxModifiedTime: count,
		AggregateHash:          hex.EncodeToString(h.Sum(nil)),
	}
}
