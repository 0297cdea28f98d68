package rfmorse

/*------------------------------------------------------------------
 *
 * Purpose:	Keep a record of transmissions.
 *
 * Description: One CSV line per message sent, with daily file names
 *		in the chosen directory, like a station log book.
 *
 *		The diagnostic chatter goes to stderr through the
 *		logger; this file is for the operator.
 *
 *------------------------------------------------------------------*/

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

const (
	journalNamePattern = "%Y-%m-%d.csv"
	journalTimeFormat  = "%Y-%m-%dT%H:%M:%SZ"
)

var journalHeader = []string{"utime", "isotime", "frequency", "wpm", "ticks", "bits", "blocks", "seconds", "outcome", "message"}

// TransmissionRecord is one line of the journal.
type TransmissionRecord struct {
	Start     time.Time
	Duration  time.Duration
	Frequency uint32
	WPM       uint32
	Ticks     uint32
	Bits      int
	Blocks    int
	Outcome   string
	Message   string
}

// Journal writes TransmissionRecords.  A nil *Journal discards them.
type Journal struct {
	dir    string
	names  *strftime.Strftime
	logger *log.Logger

	fp        *os.File
	w         *csv.Writer
	openFname string
}

/*------------------------------------------------------------------
 *
 * Function:	OpenJournal
 *
 * Purpose:	Initialization at start of application.
 *
 * Inputs:	dir	- Directory for the daily files.
 *			  Empty string disables the feature.
 *
 * Description:	The directory is created if it doesn't exist but its
 *		parent must.  We don't create multiple levels like
 *		"mkdir -p".  If that fails we use the current directory.
 *
 *------------------------------------------------------------------*/

func OpenJournal(dir string, logger *log.Logger) (*Journal, error) {
	if dir == "" {
		return nil, nil //nolint:nilnil
	}

	var names, err = strftime.New(journalNamePattern)
	if err != nil {
		return nil, fmt.Errorf("journal name pattern: %w", err)
	}

	var stat, statErr = os.Stat(dir)

	switch {
	case statErr == nil && stat.IsDir():
		// Specified directory exists.
	case statErr == nil:
		logger.Error("Log location is not a directory, using \".\" instead", "dir", dir)
		dir = "."
	default:
		if mkdirErr := os.Mkdir(dir, 0o755); mkdirErr != nil {
			logger.Error("Failed to create log location, using \".\" instead", "dir", dir, "err", mkdirErr)
			dir = "."
		} else {
			logger.Info("Log location has been created", "dir", dir)
		}
	}

	return &Journal{dir: dir, names: names, logger: logger}, nil
}

// Record appends rec to the file for its start date, opening a new file
// when the date changes.
func (j *Journal) Record(rec TransmissionRecord) error {
	if j == nil {
		return nil
	}

	var fname = j.names.FormatString(rec.Start.UTC())

	if fname != j.openFname {
		if err := j.closeFile(); err != nil {
			return err
		}

		if err := j.openFile(fname); err != nil {
			return err
		}
	}

	var isotime, _ = strftime.Format(journalTimeFormat, rec.Start.UTC())

	var err = j.w.Write([]string{
		strconv.FormatInt(rec.Start.Unix(), 10),
		isotime,
		strconv.FormatUint(uint64(rec.Frequency), 10),
		strconv.FormatUint(uint64(rec.WPM), 10),
		strconv.FormatUint(uint64(rec.Ticks), 10),
		strconv.Itoa(rec.Bits),
		strconv.Itoa(rec.Blocks),
		strconv.FormatFloat(rec.Duration.Seconds(), 'f', 1, 64),
		rec.Outcome,
		rec.Message,
	})
	if err != nil {
		return fmt.Errorf("writing journal: %w", err)
	}

	j.w.Flush()

	return j.w.Error()
}

func (j *Journal) openFile(fname string) error {
	var path = filepath.Join(j.dir, fname)

	// Only write the header on a new file.
	var _, statErr = os.Stat(path)
	var exists = statErr == nil

	var fp, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return fmt.Errorf("opening journal %s: %w", path, err)
	}

	j.logger.Debug("Opened journal", "path", path)

	j.fp = fp
	j.w = csv.NewWriter(fp)
	j.openFname = fname

	if !exists {
		if err := j.w.Write(journalHeader); err != nil {
			return fmt.Errorf("writing journal header: %w", err)
		}
	}

	return nil
}

func (j *Journal) closeFile() error {
	if j.fp == nil {
		return nil
	}

	j.w.Flush()

	var err = j.fp.Close()
	j.fp = nil
	j.w = nil
	j.openFname = ""

	return err
}

func (j *Journal) Close() error {
	if j == nil {
		return nil
	}

	return j.closeFile()
}
