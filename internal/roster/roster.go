// Package roster loads the task roster CSV that lists which recorded tasks
// exist and what each one asked the worker to do.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/HaozheZhao/cua-annotation-tool/internal/services"
)

const (
	columnTaskID          = "task_id"
	columnInstruction     = "instruction"
	columnWorkerID        = "worker_id"
	columnWorkerName      = "worker_name"
	columnKnowledgePoints = "knowledge_points"
	columnRelatedApps     = "related_apps"
)

// Task is one roster row.
type Task struct {
	ID              int      `json:"task_id"`
	Instruction     string   `json:"instruction"`
	WorkerID        string   `json:"worker_id,omitempty"`
	WorkerName      string   `json:"worker_name,omitempty"`
	KnowledgePoints []string `json:"knowledge_points,omitempty"`
	RelatedApps     []string `json:"related_apps,omitempty"`
}

// RowError reports a roster row that was skipped.
type RowError struct {
	Line   int
	TaskID string
	Reason string
}

func (e RowError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("roster line %d (task %s): %s", e.Line, e.TaskID, e.Reason)
	}
	return fmt.Sprintf("roster line %d: %s", e.Line, e.Reason)
}

// Roster is the loaded, immutable set of tasks.
type Roster struct {
	tasks map[int]Task
	ids   []int
}

// New builds a roster from already-parsed tasks. Later duplicates win.
func New(tasks ...Task) *Roster {
	r := &Roster{tasks: make(map[int]Task, len(tasks))}
	for _, task := range tasks {
		if _, exists := r.tasks[task.ID]; !exists {
			r.ids = append(r.ids, task.ID)
		}
		r.tasks[task.ID] = task
	}
	slices.Sort(r.ids)
	return r
}

// Load reads the roster CSV at path. Rows with a missing or non-integer
// task_id, an empty instruction, or a duplicate id are reported and skipped.
// The load fails only when the file cannot be read or lacks required columns.
func Load(path string) (*Roster, []RowError, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, services.Wrap(services.ErrNotFound, "roster", "open", path, err)
		}
		return nil, nil, fmt.Errorf("open roster: %w", err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse reads a roster from r.
func Parse(r io.Reader) (*Roster, []RowError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, services.Wrap(services.ErrValidation, "roster", "header", "roster is empty", nil)
		}
		return nil, nil, fmt.Errorf("read roster header: %w", err)
	}
	columns := indexColumns(header)
	for _, required := range []string{columnTaskID, columnInstruction} {
		if _, ok := columns[required]; !ok {
			return nil, nil, services.Wrap(services.ErrValidation, "roster", "header", "missing column "+required, nil)
		}
	}

	var (
		tasks   []Task
		rowErrs []RowError
		seen    = make(map[int]int)
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				rowErrs = append(rowErrs, RowError{Line: parseErr.Line, Reason: parseErr.Err.Error()})
				continue
			}
			return nil, nil, fmt.Errorf("read roster: %w", err)
		}
		if isBlank(record) {
			continue
		}
		line, _ := reader.FieldPos(0)

		rawID := field(record, columns, columnTaskID)
		if rawID == "" {
			rowErrs = append(rowErrs, RowError{Line: line, Reason: "missing task_id"})
			continue
		}
		id, err := strconv.Atoi(rawID)
		if err != nil || id < 0 {
			rowErrs = append(rowErrs, RowError{Line: line, TaskID: rawID, Reason: "task_id is not a non-negative integer"})
			continue
		}
		if first, dup := seen[id]; dup {
			rowErrs = append(rowErrs, RowError{Line: line, TaskID: rawID, Reason: fmt.Sprintf("duplicate task_id (first on line %d)", first)})
			continue
		}
		instruction := normalizeText(field(record, columns, columnInstruction))
		if instruction == "" {
			rowErrs = append(rowErrs, RowError{Line: line, TaskID: rawID, Reason: "empty instruction"})
			continue
		}
		seen[id] = line
		tasks = append(tasks, Task{
			ID:              id,
			Instruction:     instruction,
			WorkerID:        field(record, columns, columnWorkerID),
			WorkerName:      normalizeText(field(record, columns, columnWorkerName)),
			KnowledgePoints: splitTags(field(record, columns, columnKnowledgePoints)),
			RelatedApps:     splitTags(field(record, columns, columnRelatedApps)),
		})
	}
	return New(tasks...), rowErrs, nil
}

// Get returns the task with id.
func (r *Roster) Get(id int) (Task, bool) {
	if r == nil {
		return Task{}, false
	}
	task, ok := r.tasks[id]
	return task, ok
}

// Contains reports whether id is on the roster.
func (r *Roster) Contains(id int) bool {
	_, ok := r.Get(id)
	return ok
}

// IDs returns all task ids in ascending order.
func (r *Roster) IDs() []int {
	if r == nil {
		return nil
	}
	return slices.Clone(r.ids)
}

// Len returns the number of tasks.
func (r *Roster) Len() int {
	if r == nil {
		return 0
	}
	return len(r.ids)
}

func indexColumns(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for idx, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, exists := columns[key]; !exists {
			columns[key] = idx
		}
	}
	return columns
}

func field(record []string, columns map[string]int, name string) string {
	idx, ok := columns[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func isBlank(record []string) bool {
	for _, value := range record {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}

func normalizeText(value string) string {
	return strings.TrimSpace(norm.NFC.String(value))
}

func splitTags(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.FieldsFunc(value, func(r rune) bool {
		return r == ';' || r == ',' || r == '|'
	})
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if tag := normalizeText(part); tag != "" {
			out = append(out, tag)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
