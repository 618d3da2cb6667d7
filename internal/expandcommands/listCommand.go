package expandcommands

import (
	"fmt"
	"go/ast"
	"go/token"
	"sort"
	"strings"
	"sync"

	"github.com/maxgreen01/go-test-expander/internal/config"
	"github.com/maxgreen01/go-test-expander/internal/filewriter"
	"github.com/maxgreen01/go-test-expander/pkg/expander"
	"github.com/maxgreen01/go-test-expander/pkg/scanner"

	"github.com/fatih/color"
	"github.com/jessevdk/go-flags"
	"github.com/samber/lo"
)

// Implementation of both the scanner Task interface and the Flags package's Commander interface.
// Inventories every parameterized test declaration in the project without
// generating anything, reporting where each one lives, what it will expand
// into, and which declarations are currently invalid.
type ListCommand struct {
	// Input flags
	globals *config.GlobalOptions // Avoid embedding because the flag parser treats this as duplicating the global options
	listOptions

	// Generator configuration resolved from the defaults and the project config file
	opts expander.Options

	// Output file writer, shared by reference between clones
	output *filewriter.FileWriter

	// Collected declaration records, shared by reference between clones
	results *listResults
}

// Command-line flags for the List command specifically
type listOptions struct {
	ShowParams bool `long:"params" description:"Include each entry's parameter values in the report"`
}

// Compile-time interface implementation check
var _ ExpandCommand = (*ListCommand)(nil)

// Register the command with the global flag parser
func init() {
	RegisterCommand(func(flagParser *flags.Parser, opts *config.GlobalOptions) {
		flagParser.AddCommand("list", "List the parameterized test declarations in a project",
			"Scan the project for template files and report every parameterized test declaration found in them.",
			NewListCommand(opts))
	})
}

// Create a new instance of the ListCommand using a reference to the global options.
func NewListCommand(globals *config.GlobalOptions) *ListCommand {
	return &ListCommand{globals: globals}
}

func (cmd *ListCommand) Name() string {
	return "list"
}

// Create a new instance of the ListCommand with the same initial state and flags, COPYING `globals`.
// The report writer and result accumulator are shared by reference across all clones.
func (cmd *ListCommand) Clone() scanner.Task {
	globals := *cmd.globals
	return &ListCommand{
		globals:     &globals,
		listOptions: cmd.listOptions,
		opts:        cmd.opts,
		output:      cmd.output,
		results:     cmd.results,
	}
}

// Set the project directory for this task.
func (cmd *ListCommand) SetProjectDir(dir string) {
	cmd.globals.ProjectDir = dir
}

// Validate the values of this Command's flags, then run the task itself.
// THIS SHOULD ONLY BE CALLED ONCE PER PROGRAM EXECUTION.
func (cmd *ListCommand) Execute(args []string) error {
	opts, err := cmd.globals.GeneratorOptions()
	if err != nil {
		return err
	}
	cmd.opts = opts
	cmd.results = &listResults{}

	if cmd.globals.OutputPath == "" {
		cmd.globals.OutputPath = "template_report.csv"
	}
	// Initialize the output writer with the specified output path
	writer, err := filewriter.NewFileWriter(cmd.globals.OutputPath, cmd.globals.AppendOutput)
	if err != nil {
		return fmt.Errorf("failed to create output writer for path %q: %w", cmd.globals.OutputPath, err)
	}
	cmd.output = writer

	// Actually run the task by starting the scanner
	parseFailures, err := scanner.Scan(cmd, cmd.globals.ProjectDir, opts.BuildTag, cmd.globals.Threads)
	if err != nil {
		return err
	}
	if len(parseFailures) > 0 {
		return fmt.Errorf("%d template file(s) could not be parsed", len(parseFailures))
	}
	return nil
}

func (cmd *ListCommand) Visit(file *ast.File, fset *token.FileSet, path string) {
	tf := expander.Collect(file, fset, path, cmd.opts)
	rel := relativeTo(cmd.globals.ProjectDir, path)

	records := make([]declRecord, 0, len(tf.Decls))
	for _, decl := range tf.Decls {
		record := declRecord{
			Template: rel,
			Package:  tf.Package,
			Line:     decl.Pos.Line,
			Name:     decl.BaseName,
			Driver:   decl.DriverName,
			Form:     decl.Form.String(),
			Entries:  len(decl.Entries),
			Kind:     "test",
		}
		switch {
		case decl.Err != nil:
			record.Kind = "invalid"
			record.Error = decl.Err.Error()
		case decl.Body == nil:
			record.Kind = "stub"
		}
		if cmd.ShowParams {
			for _, entry := range decl.Entries {
				if entry.Named {
					record.Params = append(record.Params, "["+entry.ID+"]")
				} else {
					record.Params = append(record.Params, entry.Set.DisplayText())
				}
			}
		}
		records = append(records, record)
	}
	cmd.results.add(records)
}

func (cmd *ListCommand) ReportResults() error {
	records := cmd.results.sorted()

	// Format output for printing the report to the terminal (and potentially writing to a text file)
	reportLines := []string{
		fmt.Sprintf("\n=============  Template Report for %q:  =============\n\n", cmd.globals.ProjectDir),
	}

	if len(records) == 0 {
		reportLines = append(reportLines, "No parameterized test declarations found in the specified project.\n\n")
	} else {
		// Group the declarations by template file for display
		byTemplate := lo.GroupBy(records, func(r declRecord) string { return r.Template })
		templates := lo.Keys(byTemplate)
		sort.Strings(templates)

		for _, template := range templates {
			group := byTemplate[template]
			reportLines = append(reportLines, fmt.Sprintf("%s (package %s):\n", template, group[0].Package))
			for _, r := range group {
				line := fmt.Sprintf("  %s -> %s  [%s, %d %s, %s]\n",
					r.Name, r.Driver, r.Form, r.Entries, pluralize("entry", "entries", r.Entries), r.Kind)
				if r.Error != "" {
					line = fmt.Sprintf("  %s  INVALID: %s\n", r.Name, color.New(color.FgRed).Sprint(r.Error))
				}
				reportLines = append(reportLines, line)
				for _, params := range r.Params {
					reportLines = append(reportLines, fmt.Sprintf("      %s\n", params))
				}
			}
			reportLines = append(reportLines, "\n")
		}

		invalid := lo.CountBy(records, func(r declRecord) bool { return r.Kind == "invalid" })
		stubs := lo.CountBy(records, func(r declRecord) bool { return r.Kind == "stub" })
		totalEntries := lo.SumBy(records, func(r declRecord) int { return r.Entries })
		reportLines = append(reportLines, fmt.Sprintf(
			"Declarations: %d total (%d stubs, %d invalid) expanding into %d test cases across %d template file(s)\n\n",
			len(records), stubs, invalid, totalEntries, len(lo.Keys(byTemplate)),
		))
	}

	// Print the report to the terminal
	fmt.Print(strings.Join(reportLines, "") + "\n")

	// Append results to the output file in the detected format
	switch cmd.output.DetectFormat() {

	case filewriter.FormatTxt:
		return cmd.output.Write(reportLines)

	case filewriter.FormatCSV:
		csvHeaders := []string{
			"template",
			"package",
			"line",
			"name",
			"driver",
			"form",
			"entries",
			"kind",
			"error",
		}

		rows := make([][]string, 0, len(records))
		for _, r := range records {
			rows = append(rows, []string{
				r.Template,
				r.Package,
				fmt.Sprintf("%d", r.Line),
				r.Name,
				r.Driver,
				r.Form,
				fmt.Sprintf("%d", r.Entries),
				r.Kind,
				r.Error,
			})
		}
		return cmd.output.WriteMultiple(rows, csvHeaders)

	case filewriter.FormatJSON:
		// Flatten so repeated runs extend one top-level array
		return cmd.output.WriteAny(records, true)

	default:
		return fmt.Errorf("unsupported output format (file %q)", cmd.output.GetPath())
	}
}

func (cmd *ListCommand) Close() {
	if cmd.output != nil {
		cmd.output.Close()
	}
}

//
// =============== Result Accumulation ===============
//

// One parameterized test declaration, as reported by the list command.
type declRecord struct {
	Template string   `json:"template"`
	Package  string   `json:"package"`
	Line     int      `json:"line"`
	Name     string   `json:"name"`
	Driver   string   `json:"driver"`
	Form     string   `json:"form"`
	Entries  int      `json:"entries"`
	Kind     string   `json:"kind"`
	Error    string   `json:"error,omitempty"`
	Params   []string `json:"params,omitempty"`
}

// Aggregates declaration records across every cloned task in a scan.
type listResults struct {
	mu      sync.Mutex
	records []declRecord
}

func (r *listResults) add(records []declRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, records...)
}

// Return the records sorted by template path and declaration line, since
// visit order depends on goroutine scheduling.
func (r *listResults) sorted() []declRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	records := make([]declRecord, len(r.records))
	copy(records, r.records)
	sort.Slice(records, func(i, j int) bool {
		if records[i].Template != records[j].Template {
			return records[i].Template < records[j].Template
		}
		return records[i].Line < records[j].Line
	})
	return records
}

func pluralize(singular string, plural string, count int) string {
	if count == 1 {
		return singular
	}
	return plural
}
