package services

import (
	"fmt"
	"path/filepath"
	"strings"

	"mktsummary/internal/config"
	apperrors "mktsummary/internal/errors"
	"mktsummary/pkg/contracts/domain"
)

// BatchLimits bounds what a submitted batch may ask for. Zero values disable
// the corresponding check.
type BatchLimits struct {
	// MaxDays caps the inclusive calendar span of a batch.
	MaxDays int
	// OutputRoot is the directory every requested output_dir must resolve into.
	OutputRoot string
}

// check validates req against the limits and returns it with OutputDir
// resolved to an absolute path under OutputRoot.
func (l BatchLimits) check(req domain.BatchRequest) (domain.BatchRequest, error) {
	start, end, err := req.Dates()
	if err != nil {
		return req, apperrors.NewAppValidationError(err.Error())
	}
	if l.MaxDays > 0 && !end.Before(start) {
		if days := int(end.Sub(start).Hours()/24) + 1; days > l.MaxDays {
			return req, apperrors.NewAppValidationError(
				fmt.Sprintf("date range spans %d days, at most %d allowed", days, l.MaxDays))
		}
	}

	if l.OutputRoot == "" || req.OutputDir == "" {
		return req, nil
	}
	dir, err := resolveUnder(l.OutputRoot, req.OutputDir)
	if err != nil {
		return req, err
	}
	req.OutputDir = dir
	return req, nil
}

// resolveUnder joins relative paths onto root and rejects anything that lands
// outside it.
func resolveUnder(root, dir string) (string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve output root: %w", err)
	}
	if dir, err = config.ExpandHome(dir); err != nil {
		return "", apperrors.NewAppValidationError(err.Error())
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	dir = filepath.Clean(dir)

	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperrors.NewAppValidationError(
			fmt.Sprintf("output_dir %q is outside %s", dir, root))
	}
	return dir, nil
}
