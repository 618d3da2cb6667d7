package expandcommands

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/maxgreen01/go-test-expander/pkg/asttools"
	"github.com/maxgreen01/go-test-expander/pkg/expander"
	"github.com/maxgreen01/go-test-expander/pkg/scanner"
)

// Find generated files left behind by templates that were deleted or are no
// longer gated behind the template build tag. Only files carrying the
// generated-file header are ever considered, so a hand-written test that
// happens to match the output suffix is never reported.
func findOrphanedFiles(dir string, opts expander.Options) ([]string, error) {
	var orphans []string
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if path != dir && scanner.SkipDirName(entry.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(entry.Name(), opts.OutputSuffix) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		source, ok := expander.GeneratedSource(content)
		if !ok {
			return nil
		}

		templatePath := filepath.Join(filepath.Dir(path), source)
		isTemplate, err := asttools.FileRequiresTag(templatePath, opts.BuildTag)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		if !isTemplate {
			orphans = append(orphans, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(orphans)
	return orphans, nil
}
