package upload

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/turtacn/edefter-tracker/internal/domain/deadline"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

// reArchive matches GIB berat archive names, e.g.
//
//	GIB-1234567890-202501-KB-000000.zip
//	gib-10000000146-202412-yb-000001.ZIP
var reArchive = regexp.MustCompile(`(?i)^GIB-(\d{10,11})-(\d{4})(\d{2})-(KB|YB)-(\d+)\.zip$`)

// Archive is a parsed berat archive file.
type Archive struct {
	CompanyKey string
	Period     deadline.Period
	Kind       ArchiveKind
	Sequence   int
	Path       string
}

// ParseArchiveName parses the base name of path.  ok is false for files that
// are not GIB berat archives; an error is returned for names that look like
// archives but carry an impossible period.
func ParseArchiveName(path string) (Archive, bool, error) {
	m := reArchive.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return Archive{}, false, nil
	}
	year, _ := strconv.Atoi(m[2])
	month, _ := strconv.Atoi(m[3])
	period, err := deadline.NewPeriod(year, month)
	if err != nil {
		return Archive{}, false, errors.Wrap(err, errors.CodeInvalidParam, "invalid archive period").WithDetail(path)
	}
	seq, _ := strconv.Atoi(m[5])
	return Archive{
		CompanyKey: m[1],
		Period:     period,
		Kind:       ArchiveKind(strings.ToUpper(m[4])),
		Sequence:   seq,
		Path:       path,
	}, true, nil
}
