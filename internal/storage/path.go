package storage

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"time"
)

const ExportRoot = "exports"

var ErrInvalidExportKey = errors.New("invalid export key")

var (
	pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)
	exportKeyPattern     = regexp.MustCompile(`^exports/date=[0-9]{4}-[0-9]{2}-[0-9]{2}/[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}\.parquet$`)
)

// BuildExportPath returns exports/date=YYYY-MM-DD/<exportID>.parquet, dated
// in UTC.
func BuildExportPath(exportID string, createdAt time.Time) (string, error) {
	if err := validatePathComponent(exportID, "export id"); err != nil {
		return "", err
	}
	ts := createdAt.UTC()
	return path.Join(
		ExportRoot,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		exportID+".parquet",
	), nil
}

// ValidateExportKey accepts only keys shaped like BuildExportPath output.
func ValidateExportKey(key string) error {
	if !exportKeyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidExportKey, key)
	}
	return nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
